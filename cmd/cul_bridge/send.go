package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ammawel/cul_bridge/pkg/bridge"
)

var (
	sendHost      string
	sendProtocol  string
	sendHousecode string
	sendAddress   string
)

var sendCmd = &cobra.Command{
	Use:   "send [raw command | value]",
	Short: "Send a command through a running bridge",
	Long: `Send a raw command string, or with --protocol and --housecode a
structured device command whose value is the single argument.

  cul_bridge send X21
  cul_bridge send --protocol FS20 --housecode 1A2B --address 3C 11`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendHost, "bridge", "localhost:9040", "Bridge API host:port")
	sendCmd.Flags().StringVar(&sendProtocol, "protocol", "", "Device protocol (FS20, FHT, ...)")
	sendCmd.Flags().StringVar(&sendHousecode, "housecode", "", "Device housecode")
	sendCmd.Flags().StringVar(&sendAddress, "address", "", "Device address or button")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	path, body := "/api/raw", any(map[string]string{"command": args[0]})
	if sendProtocol != "" {
		path = "/api/command"
		body = bridge.Command{
			Protocol:  sendProtocol,
			Housecode: sendHousecode,
			Address:   sendAddress,
			Value:     args[0],
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post("http://"+sendHost+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("bridge unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bridge answered %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	fmt.Println("sent")
	return nil
}
