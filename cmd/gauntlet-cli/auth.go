package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to the server",
	Run:   login,
}

// login exchanges credentials for a JWT and stores it in the CLI config.
// Runs before any token exists, so it posts directly instead of going
// through apiRequest.
func login(cmd *cobra.Command, args []string) {
	if serverURL == "" {
		fmt.Println("Error: Server URL is required")
		os.Exit(1)
	}

	promptCredentials()

	reqBody, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	resp, err := http.Post(
		fmt.Sprintf("%s/api/v1/login", serverURL),
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
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}

	var loginResp struct {
		Token     string `json:"token"`
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(body, &loginResp); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	token = loginResp.Token
	if err := saveConfig(Config{
		ServerURL: serverURL,
		Username:  username,
		JWTToken:  token,
	}); err != nil {
		fmt.Printf("Warning: Failed to save config: %v\n", err)
	}

	fmt.Println("Login successful")
}

// promptCredentials fills in whichever of username and password the flags
// left empty.
func promptCredentials() {
	if username == "" {
		fmt.Print("Username: ")
		fmt.Scanln(&username)
	}
	if password == "" {
		fmt.Print("Password: ")
		fmt.Scanln(&password)
	}
}
