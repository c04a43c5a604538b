package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage backend credentials",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store credentials for the backend",
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored credentials",
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current authentication state",
	RunE:  runAuthStatus,
}

var (
	loginUsername string
	loginPassword string
)

func init() {
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)

	authLoginCmd.Flags().StringVar(&loginUsername, "username", "", "Backend username")
	authLoginCmd.Flags().StringVar(&loginPassword, "password", "", "Backend password")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	username := loginUsername
	if username == "" {
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return fmt.Errorf("username is required")
	}

	password := loginPassword
	if password == "" {
		fmt.Print("Password: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		password = strings.TrimSpace(line)
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	if err := authMgr.Set(username, password); err != nil {
		return err
	}

	// Verify against the backend before declaring success.
	if _, err := client.CheckHealth(cmd.Context()); err != nil {
		fmt.Println("Credentials stored, but the backend could not be reached:", err)
		return nil
	}

	fmt.Printf("Logged in as %s\n", username)
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	cleared, err := authMgr.Clear()
	if err != nil {
		return err
	}
	if !cleared {
		if authMgr.FromEnv() {
			fmt.Println("Credentials come from the environment and cannot be cleared")
		} else {
			fmt.Println("No stored credentials")
		}
		return nil
	}
	fmt.Println("Logged out")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	if !authMgr.IsAuthenticated() {
		fmt.Println("Not authenticated. Run 'tickctl auth login'.")
		return nil
	}

	source := "stored"
	if authMgr.FromEnv() {
		source = "environment"
	}
	fmt.Printf("Authenticated as %s (%s)\n", authMgr.Username(), source)

	health, err := client.CheckHealth(cmd.Context())
	if err != nil {
		fmt.Println("Backend unreachable:", err)
		return nil
	}
	fmt.Printf("Backend: %s (%s)\n", cfg.API.BaseURL, health.Status)
	return nil
}
