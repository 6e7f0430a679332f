// Package main provides a CLI tool for generating caller tokens for the attestry API.
// Signing settings are read from the same environment variables as the server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "attestry/internal/jwt_token"
	"attestry/internal/platform/config"
	"attestry/pkg/domain"
)

type tokenOutput struct {
	Token     string `json:"token"`
	Address   string `json:"address"`
	ExpiresIn string `json:"expires_in"`
	ProofHash string `json:"proof_hash,omitempty"`
}

func main() {
	address := flag.String("address", "", "Caller account address (required)")
	ttl := flag.Duration("ttl", 0, "Token time-to-live. Defaults to TOKEN_TTL.")
	proof := flag.String("proof", "", "Optional proof document to hash for POST /v1/claims")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	if err := run(*address, *ttl, *proof, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
}

func run(address string, ttl time.Duration, proof string, asJSON bool) error {
	addr, err := domain.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("-address: %w", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}

	svc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	token, err := svc.GenerateCallerToken(addr, time.Now(), ttl)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	out := tokenOutput{
		Token:     token,
		Address:   addr.String(),
		ExpiresIn: ttl.String(),
	}
	if proof != "" {
		out.ProofHash = domain.HashProof([]byte(proof)).String()
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Println(out.Token)
	if out.ProofHash != "" {
		fmt.Printf("proof_hash: %s\n", out.ProofHash)
	}
	return nil
}
