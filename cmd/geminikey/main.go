// Command geminikey stores the Gemini API key in the integration_tokens table
// so workers can start without GEMINI_API_KEY in their environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kairopi/internal/infra"
	"kairopi/internal/infra/credentials"
)

func main() {
	infra.LoadDotenv()

	var keyFlag string
	flag.StringVar(&keyFlag, "key", "", "Gemini API key (falls back to GEMINI_API_KEY)")
	flag.Parse()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "GEMINI API key is required via -key or environment")
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "geminikey").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	if err := store.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare credentials table: %v\n", err)
		os.Exit(1)
	}
	if err := store.SetGeminiAPIKey(ctx, key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist gemini api key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("GEMINI API key stored successfully")
}
