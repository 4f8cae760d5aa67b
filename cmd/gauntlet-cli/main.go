// Package main provides a CLI for interacting with the gauntlet server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL  string
	username   string
	password   string
	token      string
	configPath string
)

// Config represents the CLI configuration
type Config struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Token     string `json:"token"`
	JWTToken  string `json:"jwt_token"`
}

func main() {
	// Root command
	rootCmd := &cobra.Command{
		Use:   "gauntlet-cli",
		Short: "Gauntlet CLI",
		Long:  "Command-line interface for interacting with the gauntlet server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load config if not explicitly provided
			if serverURL == "" || (username == "" && token == "") {
				loadConfig()
			}
		},
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "Username")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Password")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "API token")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	// Add login command
	rootCmd.AddCommand(loginCmd)

	// Account commands
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Account management",
	}

	accountCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new account",
		Run:   createAccount,
	}

	accountInfoCmd := &cobra.Command{
		Use:   "info",
		Short: "Get account information",
		Run:   getAccountInfo,
	}

	accountCmd.AddCommand(accountCreateCmd, accountInfoCmd)

	// Plugin type catalog commands
	typesCmd := &cobra.Command{
		Use:   "types",
		Short: "Plugin type catalog",
	}

	typesListCmd := &cobra.Command{
		Use:   "list [family]",
		Short: "List plugin types for a family (scorer or detector)",
		Args:  cobra.ExactArgs(1),
		Run:   listTypes,
	}

	typesGetCmd := &cobra.Command{
		Use:   "get [family] [type]",
		Short: "Show a plugin type descriptor",
		Args:  cobra.ExactArgs(2),
		Run:   getType,
	}

	typesCmd.AddCommand(typesListCmd, typesGetCmd)

	// Instance commands
	instanceCmd := &cobra.Command{
		Use:   "instance",
		Short: "Plugin instance management",
	}

	instanceListCmd := &cobra.Command{
		Use:   "list [family]",
		Short: "List configured instances for a family",
		Args:  cobra.ExactArgs(1),
		Run:   listInstances,
	}

	instanceGetCmd := &cobra.Command{
		Use:   "get [family] [id]",
		Short: "Get a configured instance",
		Args:  cobra.ExactArgs(2),
		Run:   getInstance,
	}

	instanceUpdateCmd := &cobra.Command{
		Use:   "update [family] [id] [file]",
		Short: "Update an instance from a JSON file with name and parameters",
		Args:  cobra.ExactArgs(3),
		Run:   updateInstance,
	}

	instanceDeleteCmd := &cobra.Command{
		Use:   "delete [family] [id]",
		Short: "Delete a configured instance",
		Args:  cobra.ExactArgs(2),
		Run:   deleteInstance,
	}

	instanceCmd.AddCommand(instanceListCmd, instanceGetCmd, instanceUpdateCmd, instanceDeleteCmd)

	// Secret commands
	secretCmd := &cobra.Command{
		Use:   "secret",
		Short: "Secret management",
	}

	secretListCmd := &cobra.Command{
		Use:   "list",
		Short: "List secret keys",
		Run:   listSecrets,
	}

	secretSetCmd := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a secret value",
		Args:  cobra.ExactArgs(2),
		Run:   setSecret,
	}

	secretDeleteCmd := &cobra.Command{
		Use:   "delete [key]",
		Short: "Delete a secret",
		Args:  cobra.ExactArgs(1),
		Run:   deleteSecret,
	}

	secretCmd.AddCommand(secretListCmd, secretSetCmd, secretDeleteCmd)

	// Add commands to root
	rootCmd.AddCommand(accountCmd, typesCmd, instanceCmd, secretCmd)
	rootCmd.AddCommand(newSessionCmd())
	attachMigrate(rootCmd)

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig loads the CLI configuration
func loadConfig() {
	// If a config path is specified, use it
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".gauntlet", "cli-config.json")
		}
	}

	// If the config file doesn't exist, return
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Printf("Warning: Failed to read config file: %v\n", err)
		return
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		fmt.Printf("Warning: Failed to parse config file: %v\n", err)
		return
	}

	// Set values if not explicitly provided
	if serverURL == "" {
		serverURL = config.ServerURL
	}
	if username == "" && token == "" {
		username = config.Username
		token = config.Token

		// Prefer JWT token if available
		if config.JWTToken != "" {
			token = config.JWTToken
		}
	}
}

// saveConfig saves the CLI configuration
func saveConfig(config Config) error {
	// If no config path is specified, use the default
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir := filepath.Join(home, ".gauntlet")
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = filepath.Join(configDir, "cli-config.json")
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// apiRequest sends an authenticated request to the server and returns the
// response body and status code. Transport failures terminate the CLI.
func apiRequest(method, path string, body []byte) ([]byte, int) {
	if serverURL == "" {
		fmt.Println("Error: Server URL is required")
		os.Exit(1)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewBuffer(body)
	}

	req, err := http.NewRequest(method, fmt.Sprintf("%s/api/v1%s", serverURL, path), reader)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Add authentication
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	} else if username != "" && password != "" {
		req.SetBasicAuth(username, password)
	} else {
		fmt.Println("Error: Authentication required, run login first")
		os.Exit(1)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	return respBody, resp.StatusCode
}

// printJSON pretty prints a JSON response body
func printJSON(body []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}

// currentAccountID resolves the authenticated account's ID
func currentAccountID() string {
	body, status := apiRequest(http.MethodGet, "/accounts/me", nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}

	var account struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &account); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return account.ID
}

// createAccount creates a new account
func createAccount(cmd *cobra.Command, args []string) {
	if serverURL == "" {
		fmt.Println("Error: Server URL is required")
		os.Exit(1)
	}

	if username == "" {
		fmt.Print("Username: ")
		fmt.Scanln(&username)
	}

	if password == "" {
		fmt.Print("Password: ")
		fmt.Scanln(&password)
	}

	reqBody, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	resp, err := http.Post(
		fmt.Sprintf("%s/api/v1/accounts", serverURL),
		"application/json",
		bytes.NewBuffer(reqBody),
	)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if resp.StatusCode != http.StatusCreated {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}

	fmt.Println("Account created successfully")

	// Save config
	config := Config{
		ServerURL: serverURL,
		Username:  username,
		Token:     token,
	}
	if err := saveConfig(config); err != nil {
		fmt.Printf("Warning: Failed to save config: %v\n", err)
	}
}

// getAccountInfo gets information about the current account
func getAccountInfo(cmd *cobra.Command, args []string) {
	body, status := apiRequest(http.MethodGet, "/accounts/me", nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// listTypes lists the plugin types available for a family
func listTypes(cmd *cobra.Command, args []string) {
	body, status := apiRequest(http.MethodGet, fmt.Sprintf("/types/%s", args[0]), nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// getType shows a single plugin type descriptor
func getType(cmd *cobra.Command, args []string) {
	body, status := apiRequest(http.MethodGet, fmt.Sprintf("/types/%s/%s", args[0], args[1]), nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// listInstances lists configured instances for a family
func listInstances(cmd *cobra.Command, args []string) {
	body, status := apiRequest(http.MethodGet, fmt.Sprintf("/instances/%s", args[0]), nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// getInstance gets a configured instance
func getInstance(cmd *cobra.Command, args []string) {
	body, status := apiRequest(http.MethodGet, fmt.Sprintf("/instances/%s/%s", args[0], args[1]), nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// updateInstance updates an instance from a JSON file
func updateInstance(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[2])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if !json.Valid(data) {
		fmt.Printf("Error: %s is not valid JSON\n", args[2])
		os.Exit(1)
	}

	body, status := apiRequest(http.MethodPut, fmt.Sprintf("/instances/%s/%s", args[0], args[1]), data)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// deleteInstance deletes a configured instance
func deleteInstance(cmd *cobra.Command, args []string) {
	body, status := apiRequest(http.MethodDelete, fmt.Sprintf("/instances/%s/%s", args[0], args[1]), nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}

	var result struct {
		Removed bool `json:"removed"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if result.Removed {
		fmt.Println("Instance deleted")
	} else {
		fmt.Println("Instance not found")
	}
}

// listSecrets lists the secret keys for the current account
func listSecrets(cmd *cobra.Command, args []string) {
	accountID := currentAccountID()
	body, status := apiRequest(http.MethodGet, fmt.Sprintf("/accounts/%s/secrets", accountID), nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// setSecret stores a secret value for the current account
func setSecret(cmd *cobra.Command, args []string) {
	reqBody, err := json.Marshal(map[string]string{"value": args[1]})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	accountID := currentAccountID()
	body, status := apiRequest(http.MethodPut, fmt.Sprintf("/accounts/%s/secrets/%s", accountID, args[0]), reqBody)
	if status != http.StatusOK && status != http.StatusCreated {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	fmt.Println("Secret set")
}

// deleteSecret deletes a secret for the current account
func deleteSecret(cmd *cobra.Command, args []string) {
	accountID := currentAccountID()
	body, status := apiRequest(http.MethodDelete, fmt.Sprintf("/accounts/%s/secrets/%s", accountID, args[0]), nil)
	if status != http.StatusNoContent {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	fmt.Println("Secret deleted")
}
