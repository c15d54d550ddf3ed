// Command clinician-token mints a bearer token for the clinician audit endpoints,
// signed with the same JWT_SECRET the server verifies against.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/voice-intake/internal/auth"
	"github.com/suPer8Hu/voice-intake/internal/config"
	"github.com/suPer8Hu/voice-intake/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(os.Args[1:], cfg.JWTSecret, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("mint token")
	}
}

func run(args []string, secret string, out io.Writer) error {
	fs := flag.NewFlagSet("clinician-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "clinician id carried as the token subject")
	ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	clinicianID := strings.TrimSpace(*id)
	if clinicianID == "" {
		return fmt.Errorf("-id is required")
	}
	if *ttl <= 0 {
		return fmt.Errorf("-ttl must be positive, got %s", *ttl)
	}

	token, err := auth.SignJWT(clinicianID, secret, *ttl)
	if err != nil {
		return err
	}
	log.Info().Str("clinician_id", clinicianID).Dur("ttl", *ttl).Msg("Minted clinician token")
	_, err = fmt.Fprintln(out, token)
	return err
}
