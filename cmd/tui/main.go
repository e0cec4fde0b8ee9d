package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pricewatch-go/internal/config"
)

const defaultConfigPath = "config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== PriceWatch Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit provider and symbols")
		fmt.Println("3) Edit notification knobs")
		fmt.Println("4) Save config")
		fmt.Println("5) Launch watcher")
		fmt.Println("6) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editProvider(reader, cfg)
		case "3":
			editNotify(reader, cfg)
		case "4":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "5":
			launchWatcher(reader)
		case "6":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("App: %s (%s)\n", cfg.App.Name, cfg.App.Env)
	fmt.Printf("API listen addr: %s | metrics: %s\n", cfg.App.ListenAddr, cfg.App.MetricsAddr)
	fmt.Printf("Database: %s\n", cfg.App.DBPath)
	fmt.Printf("Provider: %s\n", cfg.Provider.Kind)
	fmt.Println("Symbols:", strings.Join(cfg.Provider.Symbols, ", "))
	fmt.Printf("Polygon pacing: %v between requests, %v between cycles\n",
		time.Duration(cfg.Provider.Polygon.MinRequestInterval), time.Duration(cfg.Provider.Polygon.CycleInterval))
	fmt.Printf("Notify: %d in flight, queue %d, webhook configured: %v\n",
		cfg.Notify.MaxInFlight, cfg.Notify.QueueSize, cfg.Notify.SlackWebhookURL != "")
	fmt.Printf("Paper trading enabled: %v\n", cfg.Paper.Enabled)
}

func editProvider(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Provider ---")
	fmt.Printf("Provider kind (mock/binance/polygon/mixed) [%s]: ", cfg.Provider.Kind)
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Provider.Kind = strings.TrimSpace(line)
	}
	fmt.Printf("Current symbols: %s\n", strings.Join(cfg.Provider.Symbols, ", "))
	fmt.Print("Enter symbols comma-separated (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		parts := strings.Split(strings.TrimSpace(line), ",")
		cfg.Provider.Symbols = nil
		for _, p := range parts {
			if trimmed := strings.ToUpper(strings.TrimSpace(p)); trimmed != "" {
				cfg.Provider.Symbols = append(cfg.Provider.Symbols, trimmed)
			}
		}
	}
	cfg.Provider.Polygon.MinRequestInterval = promptDuration(reader, "Polygon min request interval", cfg.Provider.Polygon.MinRequestInterval)
	cfg.Provider.Polygon.CycleInterval = promptDuration(reader, "Polygon cycle interval", cfg.Provider.Polygon.CycleInterval)
}

func editNotify(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Notifications ---")
	cfg.Notify.MaxInFlight = promptInt(reader, "Max in-flight deliveries", cfg.Notify.MaxInFlight)
	cfg.Notify.QueueSize = promptInt(reader, "Dispatch queue size", cfg.Notify.QueueSize)
	fmt.Println("Webhook URL is read from SLACK_WEBHOOK_URL, not stored here.")
}

func launchWatcher(reader *bufio.Reader) {
	fmt.Println("Launching watcher (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/pricewatchd")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start watcher: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the watcher and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptDuration(reader *bufio.Reader, label string, current config.Duration) config.Duration {
	fmt.Printf("%s [%v]: ", label, time.Duration(current))
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := time.ParseDuration(line)
	if err != nil || val < 0 {
		fmt.Printf("invalid duration, keeping %v\n", time.Duration(current))
		return current
	}
	return config.Duration(val)
}

func promptInt(reader *bufio.Reader, label string, current int) int {
	fmt.Printf("%s [%d]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.Atoi(line)
	if err != nil || val < 0 {
		fmt.Printf("invalid number, keeping %d\n", current)
		return current
	}
	return val
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
