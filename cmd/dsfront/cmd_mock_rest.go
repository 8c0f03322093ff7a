package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dspace-go/dsfront/internal/mockrest"
)

var (
	mockPort        int
	mockCurrentUser string
)

var mockRESTCmd = &cobra.Command{
	Use:   "mock-rest",
	Short: "Run an in-memory DSpace REST backend with demo fixtures",
	Long: `mock-rest serves a HAL root, a shared workspace item and the
submission/setOwner endpoint. A control panel under /mock/control switches the
current user and injects setOwner failures.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := mockrest.DefaultConfig()
		if mockPort != 0 {
			if mockPort < 1 || mockPort > 65535 {
				return fmt.Errorf("invalid port: %d", mockPort)
			}
			cfg.Port = mockPort
		}
		cfg.CurrentUser = mockCurrentUser
		return mockrest.New(cfg, mockrest.DefaultFixtures(), logger).Start()
	},
}

func init() {
	mockRESTCmd.Flags().IntVarP(&mockPort, "port", "p", 0, "Port to listen on (default 8089)")
	mockRESTCmd.Flags().StringVar(&mockCurrentUser, "current-user", "", "UUID of the eperson calls are made as")
}
