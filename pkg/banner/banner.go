// Package banner prints the startup summary: where the service listens,
// where it stores data and which background jobs are active.
package banner

import (
	"fmt"

	"marketsync/pkg/config"
)

const banner = `
███╗   ███╗ █████╗ ██████╗ ██╗  ██╗███████╗████████╗███████╗██╗   ██╗███╗   ██╗ ██████╗
████╗ ████║██╔══██╗██╔══██╗██║ ██╔╝██╔════╝╚══██╔══╝██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝
██╔████╔██║███████║██████╔╝█████╔╝ █████╗     ██║   ███████╗ ╚████╔╝ ██╔██╗ ██║██║
██║╚██╔╝██║██╔══██║██╔══██╗██╔═██╗ ██╔══╝     ██║   ╚════██║  ╚██╔╝  ██║╚██╗██║██║
██║ ╚═╝ ██║██║  ██║██║  ██║██║  ██╗███████╗   ██║   ███████║   ██║   ██║ ╚████║╚██████╗
╚═╝     ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝   ╚═╝   ╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝
`

// Print writes the startup summary for the effective configuration.
func Print(cfg *config.Config, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", cfg.Addr())
	fmt.Printf("DB Path:  %s\n", cfg.Storage.DBPath)
	fmt.Printf("Backend:  %s\n", cfg.Backend.BaseURL)
	fmt.Printf("Scope:    %s\n", cfg.Session.Scope)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}

	fmt.Println("\n== Jobs =======================================================")
	cron := cfg.Sync.Cron
	if cron == "" {
		cron = "*/5 * * * *"
	}
	fmt.Printf("- Sync sweep: cron=%s on_start=%v\n", cron, cfg.Sync.OnStart)
	if cfg.Retention.Enabled {
		rc := cfg.Retention.Cron
		if rc == "" {
			rc = "0 2 * * *"
		}
		fmt.Printf("- Retention: enabled (cron=%s, max_age_days=%d)\n", rc, cfg.Retention.MaxAgeDays)
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET  /healthz                            GET  /metrics")
	fmt.Println("GET  /v1/offers?kind=<meal|item>&q=      POST /v1/offers")
	fmt.Println("POST /v1/offers/{kind}/{id}/accept       DEL  /v1/offers/{kind}/{id}")
	fmt.Println("GET  /v1/offers/deals                    POST /v1/undo")
	fmt.Println("GET  /v1/listings                        POST /v1/listings/clear")
	fmt.Println("GET  /v1/threads?identity=<user>         POST /v1/threads/{id}/messages")
	fmt.Println("POST /v1/usage                           GET  /v1/usage/stats")
	fmt.Println("POST /v1/sync")
	fmt.Println()
}
