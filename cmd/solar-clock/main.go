package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solar-clock/config"
	"solar-clock/internal/api"
	"solar-clock/internal/geo"
	"solar-clock/internal/logging"
	"solar-clock/internal/modbus"
	"solar-clock/internal/mqtt"
	"solar-clock/internal/solar"
	"solar-clock/internal/storage"
	"solar-clock/internal/sunset"
	"solar-clock/internal/widget"

	"cloudeng.io/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	verbose    bool
)

const cacheRetention = 30 * 24 * time.Hour

func main() {
	rootCmd := &cobra.Command{
		Use:   "solar-clock",
		Short: "Clock that counts time from sunset",
		Long:  "A solar clock that shows the time elapsed since the last sunset and counts down to the next one",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(nowCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(probeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// buildProvider stacks the configured provider under retry and, when a
// database is given, the sun-times cache.
func buildProvider(cfg *config.Config, db *storage.Database, log *zap.SugaredLogger) (sunset.Provider, error) {
	base, err := sunset.NewProvider(cfg.Sunset.Provider, cfg.Sunset.BaseURL, cfg.Sunset.Timeout)
	if err != nil {
		return nil, err
	}

	policy := sunset.DefaultRetryPolicy()
	if cfg.Sunset.Attempts > 0 {
		policy.Attempts = cfg.Sunset.Attempts
	}
	if cfg.Sunset.Timeout > 0 {
		policy.Timeout = cfg.Sunset.Timeout
	}
	if cfg.Sunset.Backoff > 0 {
		policy.Backoff = cfg.Sunset.Backoff
	}
	provider := sunset.WithRetry(base, policy, log)

	if db != nil {
		provider = sunset.Cached(provider, db, log)
	}
	return provider, nil
}

func parseModes(cfg *config.Config) (widget.Theme, widget.ClockMode, error) {
	theme, err := widget.ParseTheme(cfg.Clock.Theme)
	if err != nil {
		return "", "", fmt.Errorf("invalid clock.theme: %w", err)
	}
	mode, err := widget.ParseClockMode(cfg.Clock.Mode)
	if err != nil {
		return "", "", fmt.Errorf("invalid clock.mode: %w", err)
	}
	return theme, mode, nil
}

func coordinatesFlags(cmd *cobra.Command, cfg *config.Config) (geo.Coordinates, error) {
	coords := geo.Coordinates{Latitude: cfg.Location.Latitude, Longitude: cfg.Location.Longitude}
	if cmd.Flags().Changed("lat") {
		coords.Latitude, _ = cmd.Flags().GetFloat64("lat")
	}
	if cmd.Flags().Changed("lon") {
		coords.Longitude, _ = cmd.Flags().GetFloat64("lon")
	}
	if coords.IsZero() && !cmd.Flags().Changed("lat") && !cmd.Flags().Changed("lon") {
		return coords, fmt.Errorf("no location: pass --lat/--lon or set location.latitude/longitude")
	}
	return coords, coords.Validate()
}

func appendErr(errs *errors.M, what string, err error) {
	if err != nil {
		errs.Append(errors.Annotate(what, err))
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the solar clock service",
		Long:  "Start the clock page, websocket stream, MQTT publisher and Modbus register map",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			loc, err := cfg.TimeZone()
			if err != nil {
				return err
			}
			theme, mode, err := parseModes(cfg)
			if err != nil {
				return err
			}

			var db *storage.Database
			if cfg.Sunset.Cache {
				db, err = storage.NewDatabase(cfg.Database.Path)
				if err != nil {
					return fmt.Errorf("failed to open database: %w", err)
				}
				log.Infof("Database opened at %s", cfg.Database.Path)
				if n, err := db.CleanOldSunTimes(time.Now(), cacheRetention); err != nil {
					log.Warnf("Failed to clean sun times cache: %v", err)
				} else if n > 0 {
					log.Infof("Removed %d cached sun times", n)
				}
			}

			provider, err := buildProvider(cfg, db, log)
			if err != nil {
				return err
			}

			var locator widget.Locator
			if cfg.GeoIP.Enabled {
				locator = geo.NewIPWhoIs(cfg.GeoIP.URL, cfg.GeoIP.Timeout)
			}

			clock := widget.New(widget.Config{
				Provider:      provider,
				Locator:       locator,
				LocationLabel: cfg.Location.Label,
				TimeZone:      loc,
				Interval:      cfg.Clock.Interval,
				Theme:         theme,
				ClockMode:     mode,
				Stars:         cfg.Clock.Stars,
				Logger:        log,
			})

			fixed := geo.Coordinates{Latitude: cfg.Location.Latitude, Longitude: cfg.Location.Longitude}

			// Mode changes persist through the API server when it runs.
			var controller mqtt.Controller = clock

			var server *api.Server
			if cfg.API.Enabled {
				var history api.History
				if db != nil {
					history = db
				}
				server = api.NewServer(api.ServerConfig{
					Port:          cfg.API.Port,
					BaseURL:       cfg.API.BaseURL,
					Clock:         clock,
					History:       history,
					FixedLocation: !fixed.IsZero(),
					Config:        cfg,
					ConfigPath:    configFile,
					Logger:        log,
				})
				clock.AddPublisher(server.Hub())
				controller = server
			}

			publisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Enabled:     cfg.MQTT.Enabled,
				Logger:      log,
			})
			if err != nil {
				log.Warnf("MQTT connection failed: %v", err)
			} else if cfg.MQTT.Enabled {
				log.Infof("MQTT connected to %s", cfg.MQTT.Broker)
				if err := publisher.PublishHomeAssistantDiscovery(); err != nil {
					log.Warnf("Home Assistant discovery failed: %v", err)
				}
				if err := publisher.SubscribeControls(controller); err != nil {
					log.Warnf("MQTT control subscription failed: %v", err)
				}
				clock.AddPublisher(publisher)
			}

			var registers *modbus.Server
			if cfg.Modbus.Enabled {
				registers = modbus.NewServer(modbus.ServerConfig{
					URL:        cfg.Modbus.URL,
					UnitID:     cfg.Modbus.UnitID,
					Controller: controller,
					Logger:     log,
				})
				if err := registers.Start(); err != nil {
					log.Warnf("Modbus server disabled: %v", err)
					registers = nil
				} else {
					clock.AddPublisher(registers)
				}
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			clock.Start(ctx)
			if !fixed.IsZero() {
				go func() {
					if err := clock.Locate(ctx, fixed); err != nil {
						log.Errorf("Failed to resolve sunset for %s: %v", fixed, err)
					}
				}()
			}

			if server != nil {
				go func() {
					if err := server.Start(); err != nil && err != http.ErrServerClosed {
						log.Errorf("API server error: %v", err)
					}
				}()
			}

			log.Info("Solar Clock started. Press Ctrl+C to stop.")

			<-sigChan
			log.Info("Shutting down...")
			cancel()
			clock.Stop()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()

			var errs errors.M
			if server != nil {
				appendErr(&errs, "api server", server.Stop(shutdownCtx))
			}
			if registers != nil {
				appendErr(&errs, "modbus server", registers.Stop())
			}
			if publisher != nil {
				appendErr(&errs, "mqtt publisher", publisher.Close())
			}
			if db != nil {
				appendErr(&errs, "database", db.Close())
			}
			return errs.Err()
		},
	}
}

func nowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "now",
		Short: "Print the solar clock once",
		Long:  "Resolve the sunset for a location and print the time since the last sunset and until the next",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			coords, err := coordinatesFlags(cmd, cfg)
			if err != nil {
				return err
			}
			loc, err := cfg.TimeZone()
			if err != nil {
				return err
			}
			provider, err := buildProvider(cfg, nil, log)
			if err != nil {
				return err
			}

			now := time.Now().In(loc)
			times, err := provider.SunTimes(cmd.Context(), coords.Latitude, coords.Longitude, now)
			if err != nil {
				return err
			}

			tracker := solar.NewTracker()
			defer tracker.Dispose()
			tracker.SetReference(times.Sunset)
			reading, err := tracker.Sample(now)
			if err != nil {
				return err
			}

			if asJSON {
				output, _ := json.MarshalIndent(struct {
					Times   *sunset.Times `json:"sun_times"`
					Reading solar.Reading `json:"reading"`
				}{times, reading}, "", "  ")
				fmt.Println(string(output))
				return nil
			}

			fmt.Printf("Location:     %s (%s)\n", coords, times.Provider)
			fmt.Printf("%s  %s\n", widget.StatusSunsetPrefix, times.Sunset.In(loc).Format("15:04:05"))
			fmt.Printf("Solar clock:  %s\n", solar.FormatClock(reading.Elapsed))
			fmt.Printf("%s%s\n", widget.CountdownPrefix, solar.FormatCountdown(reading.Until))
			return nil
		},
	}
	cmd.Flags().Float64("lat", 0, "latitude in degrees")
	cmd.Flags().Float64("lon", 0, "longitude in degrees")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// linePrinter renders each frame as a single terminal line.
type linePrinter struct {
	out io.Writer
}

func (p linePrinter) Name() string { return "stdout" }

func (p linePrinter) PublishFrame(f widget.Frame) error {
	_, err := fmt.Fprintf(p.out, "%s  %s  | %s | %s\n", f.RealClock, f.Clock, f.Countdown, f.Status)
	return err
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the solar clock every tick",
		Long:  "Resolve the sunset for a location and print a line every tick until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			coords, err := coordinatesFlags(cmd, cfg)
			if err != nil {
				return err
			}
			loc, err := cfg.TimeZone()
			if err != nil {
				return err
			}
			theme, mode, err := parseModes(cfg)
			if err != nil {
				return err
			}
			provider, err := buildProvider(cfg, nil, log)
			if err != nil {
				return err
			}

			clock := widget.New(widget.Config{
				Provider:      provider,
				LocationLabel: coords.String(),
				TimeZone:      loc,
				Interval:      cfg.Clock.Interval,
				Theme:         theme,
				ClockMode:     mode,
				Logger:        log,
			})
			clock.AddPublisher(linePrinter{out: os.Stdout})
			defer clock.Stop()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := clock.Locate(ctx, coords); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().Float64("lat", 0, "latitude in degrees")
	cmd.Flags().Float64("lon", 0, "longitude in degrees")
	return cmd
}

func probeCmd() *cobra.Command {
	var (
		url    string
		unitID uint8
		theme  string
		mode   string
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Read the Modbus register map",
		Long:  "Connect to a running solar clock over Modbus TCP, optionally switch its theme or clock mode, and print its registers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if url == "" {
				url = cfg.Modbus.URL
			}
			if !cmd.Flags().Changed("unit") {
				unitID = cfg.Modbus.UnitID
			}

			fmt.Printf("Reading %s (unit %d)...\n", url, unitID)

			client := modbus.NewClient(url, unitID, 5*time.Second)
			if err := client.Connect(); err != nil {
				fmt.Printf("Connection FAILED: %v\n", err)
				return err
			}
			defer client.Close()

			if theme != "" {
				if err := client.SetTheme(widget.Theme(theme)); err != nil {
					return fmt.Errorf("failed to set theme: %w", err)
				}
			}
			if mode != "" {
				if err := client.SetClockMode(widget.ClockMode(mode)); err != nil {
					return fmt.Errorf("failed to set clock mode: %w", err)
				}
			}

			snap, err := client.ReadSnapshot()
			if err != nil {
				return fmt.Errorf("failed to read registers: %w", err)
			}

			fmt.Printf("  Ready:       %t\n", snap.Ready)
			if snap.Ready {
				fmt.Printf("  Sunset:      %s\n", snap.Sunset.Format(time.RFC3339))
				fmt.Printf("  Solar clock: %s\n", solar.FormatClock(snap.Elapsed))
				fmt.Printf("  Countdown:   %s\n", solar.FormatCountdown(snap.Until))
			}
			fmt.Printf("  Theme:       %s (%s)\n", snap.Theme, snap.Appearance)
			fmt.Printf("  Clock mode:  %s\n", snap.ClockMode)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "modbus URL, e.g. tcp://localhost:5502 (default modbus.url)")
	cmd.Flags().Uint8Var(&unitID, "unit", 1, "modbus unit id")
	cmd.Flags().StringVar(&theme, "theme", "", "write the theme first (day, night or auto)")
	cmd.Flags().StringVar(&mode, "mode", "", "write the clock mode first (solar or real)")
	return cmd
}
