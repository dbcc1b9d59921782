package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"

	"sessionhub/internal/config"
	"sessionhub/internal/output"
	"sessionhub/internal/ui"
)

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// RunTokenAdd generates a token and appends it to the config file.
func RunTokenAdd() error {
	cfg, err := config.ReadFile(ConfigFile)
	if err != nil {
		return output.PrintError(err)
	}
	token, err := generateToken()
	if err != nil {
		return output.PrintError(err)
	}
	cfg.Tokens = append(cfg.Tokens, token)
	if err := config.SaveConfig(ConfigFile, cfg); err != nil {
		return output.PrintError(fmt.Errorf("save config: %w", err))
	}
	return output.Print(map[string]string{"token": token}, func() {
		ui.ShowSuccess("Generated token: %s", token)
		ui.ShowInfo("Send it as \"Authorization: Bearer <token>\" or ?token=<token>")
	})
}

// RunTokenList prints the configured tokens, masked in text mode.
func RunTokenList() error {
	cfg, err := config.ReadFile(ConfigFile)
	if err != nil {
		return output.PrintError(err)
	}
	return output.Print(cfg.Tokens, func() {
		if len(cfg.Tokens) == 0 {
			ui.ShowWarning("No tokens configured; the server accepts unauthenticated requests")
			return
		}
		for _, t := range cfg.Tokens {
			ui.ShowField("token", maskToken(t))
		}
	})
}

// RunTokenRemove drops token from the config file.
func RunTokenRemove(token string) error {
	cfg, err := config.ReadFile(ConfigFile)
	if err != nil {
		return output.PrintError(err)
	}
	idx := slices.Index(cfg.Tokens, token)
	if idx < 0 {
		return output.PrintError(fmt.Errorf("token not found"))
	}
	cfg.Tokens = slices.Delete(cfg.Tokens, idx, idx+1)
	if err := config.SaveConfig(ConfigFile, cfg); err != nil {
		return output.PrintError(fmt.Errorf("save config: %w", err))
	}
	return output.Print(map[string]int{"remaining": len(cfg.Tokens)}, func() {
		ui.ShowSuccess("Token removed (%d remaining)", len(cfg.Tokens))
	})
}

func maskToken(t string) string {
	if len(t) <= 8 {
		return "****"
	}
	return t[:4] + "…" + t[len(t)-4:]
}
