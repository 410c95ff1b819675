// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/mypytutor/mptsync/internal/i18n"
	"github.com/mypytutor/mptsync/internal/logging"
	"github.com/mypytutor/mptsync/internal/transfer"
)

func newTrustHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust-host [host]",
		Short: "Fetch and pin the server's SSH host key",
		Long: `Connects to the host (the configured course server when omitted), shows
the fingerprint of the presented host key and pins it after confirmation.
All later connections require the exact same key.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTrustHost,
	}
	cmd.Flags().Bool("yes", false, "pin the key without asking")
	return cmd
}

func runTrustHost(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	host := cfg.Remote.Host
	if len(args) > 0 {
		host = args[0]
	}

	key, err := transfer.GetRemoteHostKey(host)
	if err != nil {
		return fmt.Errorf(i18n.T("trust.error_fetch"), host, err)
	}

	fmt.Println(i18n.T("trust.presenting", host))
	fmt.Printf("  %s %s\n", key.Type(), ssh.FingerprintSHA256(key))

	assumeYes, _ := cmd.Flags().GetBool("yes")
	if !assumeYes {
		fmt.Print(i18n.T("trust.confirm"))
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			logging.Infof("%s", i18n.T("trust.aborted"))
			return nil
		}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.AddKnownHostKey(host, string(ssh.MarshalAuthorizedKey(key))); err != nil {
		return fmt.Errorf(i18n.T("trust.error_store"), err)
	}
	logging.Infof("%s", i18n.T("trust.pinned", host))
	return nil
}
