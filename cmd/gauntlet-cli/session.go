package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// newSessionCmd builds the session command group covering the configuration
// wizard from start through advance.
func newSessionCmd() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Configuration session management",
	}

	sessionStartCmd := &cobra.Command{
		Use:   "start [pipeline]",
		Short: "Start a configuration session for a pipeline",
		Args:  cobra.ExactArgs(1),
		Run:   startSession,
	}

	sessionGetCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		Run:   getSession,
	}

	sessionCancelCmd := &cobra.Command{
		Use:   "cancel [id]",
		Short: "Cancel an in-progress configuration",
		Args:  cobra.ExactArgs(1),
		Run:   cancelSession,
	}

	sessionTypesCmd := &cobra.Command{
		Use:   "types [id]",
		Short: "List the plugin types offered by a session",
		Args:  cobra.ExactArgs(1),
		Run:   sessionTypes,
	}

	sessionSelectCmd := &cobra.Command{
		Use:   "select [id] [type]",
		Short: "Select a plugin type within a session",
		Args:  cobra.ExactArgs(2),
		Run:   selectType,
	}

	sessionAddCmd := &cobra.Command{
		Use:   "add [id] [name] [params-file]",
		Short: "Add a named instance using parameters from a JSON file",
		Args:  cobra.ExactArgs(3),
		Run:   addInstance,
	}

	sessionInstancesCmd := &cobra.Command{
		Use:   "instances [id]",
		Short: "List the instances attached during a session",
		Args:  cobra.ExactArgs(1),
		Run:   sessionInstances,
	}

	sessionRemoveCmd := &cobra.Command{
		Use:   "remove [id] [instance-id]",
		Short: "Remove an instance from a session",
		Args:  cobra.ExactArgs(2),
		Run:   removeInstance,
	}

	sessionTestCmd := &cobra.Command{
		Use:   "test [id] [instance-id] [input-file]",
		Short: "Run an ad-hoc test against an instance using input from a JSON file",
		Args:  cobra.ExactArgs(3),
		Run:   testInstance,
	}

	sessionAdvanceCmd := &cobra.Command{
		Use:   "advance [id]",
		Short: "Finish a session and print the configured instances",
		Args:  cobra.ExactArgs(1),
		Run:   advanceSession,
	}

	sessionCmd.AddCommand(
		sessionStartCmd,
		sessionGetCmd,
		sessionCancelCmd,
		sessionTypesCmd,
		sessionSelectCmd,
		sessionAddCmd,
		sessionInstancesCmd,
		sessionRemoveCmd,
		sessionTestCmd,
		sessionAdvanceCmd,
	)
	return sessionCmd
}

// startSession starts a configuration session
func startSession(cmd *cobra.Command, args []string) {
	reqBody, err := json.Marshal(map[string]string{"pipeline": args[0]})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	body, status := apiRequest(http.MethodPost, "/sessions", reqBody)
	if status != http.StatusCreated {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// getSession shows a session
func getSession(cmd *cobra.Command, args []string) {
	body, status := apiRequest(http.MethodGet, fmt.Sprintf("/sessions/%s", args[0]), nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// cancelSession cancels an in-progress configuration
func cancelSession(cmd *cobra.Command, args []string) {
	body, status := apiRequest(http.MethodDelete, fmt.Sprintf("/sessions/%s", args[0]), nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	fmt.Println("Session cancelled")
	printJSON(body)
}

// sessionTypes lists the plugin types offered by a session
func sessionTypes(cmd *cobra.Command, args []string) {
	body, status := apiRequest(http.MethodGet, fmt.Sprintf("/sessions/%s/types", args[0]), nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// selectType selects a plugin type within a session
func selectType(cmd *cobra.Command, args []string) {
	reqBody, err := json.Marshal(map[string]string{"type": args[1]})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	body, status := apiRequest(http.MethodPost, fmt.Sprintf("/sessions/%s/select", args[0]), reqBody)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// addInstance adds a named instance with parameters read from a file
func addInstance(cmd *cobra.Command, args []string) {
	paramsData, err := os.ReadFile(args[2])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if !json.Valid(paramsData) {
		fmt.Printf("Error: %s is not valid JSON\n", args[2])
		os.Exit(1)
	}

	reqBody, err := json.Marshal(struct {
		Name       string          `json:"name"`
		Parameters json.RawMessage `json:"parameters"`
	}{
		Name:       args[1],
		Parameters: json.RawMessage(paramsData),
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	body, status := apiRequest(http.MethodPost, fmt.Sprintf("/sessions/%s/instances", args[0]), reqBody)
	if status != http.StatusCreated {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// sessionInstances lists the instances attached during a session
func sessionInstances(cmd *cobra.Command, args []string) {
	body, status := apiRequest(http.MethodGet, fmt.Sprintf("/sessions/%s/instances", args[0]), nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// removeInstance removes an instance from a session
func removeInstance(cmd *cobra.Command, args []string) {
	body, status := apiRequest(http.MethodDelete, fmt.Sprintf("/sessions/%s/instances/%s", args[0], args[1]), nil)
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
		fmt.Println("Instance removed")
	} else {
		fmt.Println("Instance not found")
	}
}

// testInstance runs an ad-hoc test with input read from a file
func testInstance(cmd *cobra.Command, args []string) {
	inputData, err := os.ReadFile(args[2])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if !json.Valid(inputData) {
		fmt.Printf("Error: %s is not valid JSON\n", args[2])
		os.Exit(1)
	}

	body, status := apiRequest(http.MethodPost, fmt.Sprintf("/sessions/%s/instances/%s/test", args[0], args[1]), inputData)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}

// advanceSession finishes a session
func advanceSession(cmd *cobra.Command, args []string) {
	body, status := apiRequest(http.MethodPost, fmt.Sprintf("/sessions/%s/advance", args[0]), nil)
	if status != http.StatusOK {
		fmt.Printf("Error: %s\n", body)
		os.Exit(1)
	}
	printJSON(body)
}
