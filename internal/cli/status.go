package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/dyah/lintas/internal/config"
	"github.com/dyah/lintas/pkg/gateway"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sessions of a running daemon",
	Long: `Query a running daemon's gateway for its session table and print
each session's state and authorization.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.Gateway.Enabled {
		return fmt.Errorf("gateway is disabled in configuration; status requires it")
	}

	addr := net.JoinHostPort(cfg.Gateway.Host, fmt.Sprintf("%d", cfg.Gateway.Port))
	statuses, err := fetchSessionList("ws://"+addr+"/ws", cfg.Gateway.SharedSecret)
	if err != nil {
		return fmt.Errorf("failed to query daemon at %s: %w", addr, err)
	}

	if len(statuses) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions connected.")
		return nil
	}
	for _, st := range statuses {
		auth := "not logged in"
		if st.Authorized {
			auth = "logged in"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", st.Name, st.State, auth)
	}
	return nil
}

// fetchSessionList performs one sessions.list round trip against a gateway
// websocket endpoint.
func fetchSessionList(url, secret string) ([]gateway.SessionStatus, error) {
	var header http.Header
	if secret != "" {
		header = http.Header{"X-Lintas-Secret": []string{secret}}
	}

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	if err := conn.WriteJSON(gateway.Request{ID: "status", Method: "sessions.list"}); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	var response gateway.Response
	if err := conn.ReadJSON(&response); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if !response.OK {
		return nil, fmt.Errorf("gateway error: %s", response.Error)
	}

	// Result arrives as generic JSON; round-trip it into the typed form.
	raw, err := json.Marshal(response.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode result: %w", err)
	}
	var statuses []gateway.SessionStatus
	if err := json.Unmarshal(raw, &statuses); err != nil {
		return nil, fmt.Errorf("failed to decode session list: %w", err)
	}
	return statuses, nil
}
