// dlrelay - WhatsApp to Direct Line bot relay
//
// Copyright (c) 2026 dlrelay contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/dlrelay/cmd/dlrelay/internal"
	"github.com/tinyland-inc/dlrelay/cmd/dlrelay/internal/chat"
	"github.com/tinyland-inc/dlrelay/cmd/dlrelay/internal/gateway"
	"github.com/tinyland-inc/dlrelay/cmd/dlrelay/internal/onboard"
	"github.com/tinyland-inc/dlrelay/cmd/dlrelay/internal/version"
)

func NewDlrelayCommand() *cobra.Command {
	short := fmt.Sprintf("%s dlrelay - WhatsApp to Direct Line relay v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "dlrelay",
		Short:   short,
		Example: "dlrelay gateway",
	}

	cmd.PersistentFlags().StringVarP(&internal.ConfigPath, "config", "c", "", "Config file (default ~/.dlrelay/config.json)")

	cmd.AddCommand(
		onboard.NewOnboardCommand(),
		gateway.NewGatewayCommand(),
		chat.NewChatCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewDlrelayCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
