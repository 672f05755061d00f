package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fatih/color"
)

const (
	baseURL   = "http://localhost:3000/api"
	userToken = "" // paste a valid JWT here before running
)

// Pretty print JSON helper
func prettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(b))
}

// Request helper
func sendRequest(method, url, token string, body interface{}) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+url, bodyReader)
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{} // No timeout: the turn endpoint streams
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp, respBody, err
}

func main() {
	color.Cyan("🚀 Starting Chat Streaming API Test\n")

	// 1. Create Session
	color.Yellow("\n[USER] 1. Create Chat Session")
	resp, body, err := sendRequest("POST", "/chat/v1/session", userToken, map[string]interface{}{
		"auto_select": true,
	})
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var createResp map[string]interface{}
	json.Unmarshal(body, &createResp)
	prettyPrint(createResp)

	var sessionID string
	if data, ok := createResp["data"].(map[string]interface{}); ok {
		if id, ok := data["id"].(string); ok {
			sessionID = id
		}
	}
	if sessionID == "" {
		color.Red("No session id in response, aborting")
		os.Exit(1)
	}

	// 2. Set Mode (required before the first turn)
	color.Yellow("\n[USER] 2. Set Chat Mode -> deep_dive")
	resp, body, err = sendRequest("POST", "/chat/v1/session/"+sessionID+"/mode", userToken, map[string]interface{}{
		"mode": "deep_dive",
	})
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var modeResp map[string]interface{}
	json.Unmarshal(body, &modeResp)
	prettyPrint(modeResp)

	// 3. Send a streaming turn and print deltas as they arrive
	color.Yellow("\n[USER] 3. Send Turn (streaming)")
	turnBody, _ := json.Marshal(map[string]interface{}{
		"chat": "What themes came up across the attached conversations?",
	})
	req, _ := http.NewRequest("POST", baseURL+"/chat/v1/session/"+sessionID+"/turn", bytes.NewBuffer(turnBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+userToken)
	streamResp, err := (&http.Client{}).Do(req)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", streamResp.Status)
	reader := bufio.NewReader(streamResp.Body)
	buf := make([]byte, 512)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			fmt.Print(string(buf[:n]))
		}
		if err != nil {
			break
		}
	}
	streamResp.Body.Close()
	fmt.Println()

	// 4. Session state after the stream ended
	color.Yellow("\n[USER] 4. Get Session State")
	resp, body, err = sendRequest("GET", "/chat/v1/session/"+sessionID+"/state", userToken, nil)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var stateResp map[string]interface{}
	json.Unmarshal(body, &stateResp)
	prettyPrint(stateResp)

	// 5. History should contain the greeting, the question and the answer
	color.Yellow("\n[USER] 5. Get Chat History")
	resp, body, err = sendRequest("GET", "/chat/v1/session/"+sessionID+"/history", userToken, nil)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var historyResp map[string]interface{}
	json.Unmarshal(body, &historyResp)
	prettyPrint(historyResp)

	color.Cyan("\n✅ Done")
}
