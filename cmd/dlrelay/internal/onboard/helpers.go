package onboard

import (
	"fmt"
	"io"
	"os"

	"github.com/tinyland-inc/dlrelay/cmd/dlrelay/internal"
	"github.com/tinyland-inc/dlrelay/pkg/auth"
	"github.com/tinyland-inc/dlrelay/pkg/config"
)

func onboard(in io.Reader, out io.Writer, force, interactive bool) error {
	path := internal.GetConfigPath()

	exists := false
	if _, err := os.Stat(path); err == nil {
		exists = true
	}
	if exists && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.DefaultConfig()
	if exists {
		// file only: environment secrets must not end up on disk
		loaded, err := config.ReadConfig(path)
		if err != nil {
			return fmt.Errorf("error loading existing config: %w", err)
		}
		cfg = loaded
	}

	if interactive {
		if err := promptCredentials(auth.NewPrompter(in, out), cfg); err != nil {
			return err
		}
	}

	if err := config.SaveConfig(path, cfg); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}

	fmt.Fprintf(out, "%s Config written to %s\n\n", internal.Logo, path)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, "Next steps:")
		fmt.Fprintln(out, "  1. Set directline.token to your bot's Direct Line secret")
		fmt.Fprintln(out, "  2. Set twilio.account_sid, twilio.auth_token and twilio.from")
		fmt.Fprintln(out, "  3. Run: dlrelay gateway")
		return nil
	}
	fmt.Fprintln(out, "Run: dlrelay gateway")
	return nil
}

func promptCredentials(p *auth.Prompter, cfg *config.Config) error {
	fields := []struct {
		secret auth.Secret
		value  *string
	}{
		{auth.DirectLineSecret, &cfg.DirectLine.Token},
		{auth.TwilioAccountSID, &cfg.Twilio.AccountSID},
		{auth.TwilioAuthToken, &cfg.Twilio.AuthToken},
		{auth.TwilioFrom, &cfg.Twilio.From},
	}
	for _, f := range fields {
		v, err := p.Paste(f.secret, *f.value)
		if err != nil {
			return err
		}
		*f.value = v
	}
	return nil
}
