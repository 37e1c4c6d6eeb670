// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/servicemonitor/internal/config"
	"github.com/hamed0406/servicemonitor/internal/logging"
	"github.com/hamed0406/servicemonitor/internal/seed"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.FromEnv()
	for _, e := range multierr.Errors(err) {
		fail(e.Error())
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		fail("LOG_LEVEL: " + err.Error())
	}

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty (write routes are open to anyone).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty (read routes only accept admin keys, or anyone if both are empty).")
	}
	for _, name := range []string{"ADMIN_API_KEYS", "PUBLIC_API_KEYS"} {
		if strings.Contains(os.Getenv(name), " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	ok("API_ADDR=" + cfg.Addr)
	ok("STORE_BACKEND=" + cfg.StoreBackend)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		warn("memory store: every group is lost on restart.")
	case config.BackendFile:
		ok("DATA_DIR=" + cfg.DataDir)
	}

	if cfg.PollingInterval == 0 {
		warn("POLLING_INTERVAL=0 disables scheduled checks.")
	} else {
		ok("POLLING_INTERVAL=" + cfg.PollingInterval.String())
	}
	if cfg.ProbeTimeout >= cfg.PollingInterval && cfg.PollingInterval > 0 {
		warn("PROBE_TIMEOUT is not shorter than POLLING_INTERVAL; cycles may overrun ticks.")
	}
	if cfg.TLSSkipVerify {
		warn("TLS_SKIP_VERIFY=true: invalid certificates are accepted.")
	}
	ok("RETRY_ATTEMPTS=" + strconv.Itoa(cfg.RetryAttempts))

	if len(cfg.AllowGroups) == 0 {
		warn("ALLOW_LIST_GROUP_IDS empty: every group id may be used.")
	} else {
		ok("ALLOW_LIST_GROUP_IDS=" + strings.Join(cfg.AllowGroups, ","))
	}

	if cfg.SlackWebhookURL == "" && len(cfg.KafkaBrokers) == 0 {
		warn("no SLACK_WEBHOOK_URL or KAFKA_BROKERS: notifications only go to the log.")
	}
	if cfg.SlackWebhookURL != "" {
		ok("SLACK_WEBHOOK_URL present")
	}
	if len(cfg.KafkaBrokers) > 0 {
		ok("KAFKA_BROKERS=" + strings.Join(cfg.KafkaBrokers, ",") + " topic=" + cfg.KafkaTopic)
	}

	if cfg.SeedFile != "" {
		if f, err := seed.Load(cfg.SeedFile); err != nil {
			fail(err.Error())
		} else {
			ok(fmt.Sprintf("SEED_FILE=%s (%d groups)", cfg.SeedFile, len(f.Groups)))
		}
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
