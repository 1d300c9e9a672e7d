package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anjiri1684/tour_booking/bootstrap"
	config "github.com/anjiri1684/tour_booking/configs"
	"github.com/anjiri1684/tour_booking/database"
	"github.com/anjiri1684/tour_booking/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "tourctl",
		Short:   "tourctl - operator tasks for the tour booking engine",
		Version: Version,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(addTripCmd())
	rootCmd.AddCommand(addDateCmd())
	rootCmd.AddCommand(cancelDateCmd())
	rootCmd.AddCommand(thresholdsCmd())
	rootCmd.AddCommand(remindCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withApp(fn func(a *bootstrap.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := bootstrap.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *bootstrap.App) error {
				if err := database.Migrate(a.DB); err != nil {
					return err
				}
				fmt.Println("Schema is up to date.")
				return nil
			})
		},
	}
}

func addTripCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-trip [title]",
		Short: "Create a trip with its pricing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, _ := cmd.Flags().GetInt64("price")
			deposit, _ := cmd.Flags().GetInt("deposit-percent")
			dueDays, _ := cmd.Flags().GetInt("due-days")
			currency, _ := cmd.Flags().GetString("currency")
			if price <= 0 {
				return fmt.Errorf("--price must be positive")
			}
			if deposit < 0 || deposit > 100 {
				return fmt.Errorf("--deposit-percent must be between 0 and 100")
			}

			return withApp(func(a *bootstrap.App) error {
				if currency == "" {
					currency = a.Config.Currency
				}
				trip := &models.Trip{
					Title:            args[0],
					PricePerPerson:   price,
					DepositPercent:   deposit,
					Currency:         strings.ToLower(currency),
					RemainingDueDays: dueDays,
				}
				if err := a.Store.CreateTrip(cmd.Context(), trip); err != nil {
					return err
				}
				return printJSON(trip)
			})
		},
	}

	cmd.Flags().Int64("price", 0, "Price per person in minor units")
	cmd.Flags().Int("deposit-percent", 30, "Share of the total collected as deposit")
	cmd.Flags().Int("due-days", 30, "Days before departure the balance is due")
	cmd.Flags().String("currency", "", "ISO currency code (defaults to CURRENCY)")

	return cmd
}

func addDateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-date [trip-id] [YYYY-MM-DD]",
		Short: "Schedule a departure for a trip",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tripID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid trip id: %w", err)
			}
			day, err := time.Parse("2006-01-02", args[1])
			if err != nil {
				return fmt.Errorf("invalid date: %w", err)
			}
			capacity, _ := cmd.Flags().GetInt("capacity")
			minimum, _ := cmd.Flags().GetInt("min")
			if capacity <= 0 || minimum < 0 || minimum > capacity {
				return fmt.Errorf("need --capacity > 0 and 0 <= --min <= capacity")
			}

			return withApp(func(a *bootstrap.App) error {
				d := &models.TripDate{TripID: tripID, Date: day, Capacity: capacity, MinParticipants: minimum}
				if err := a.Store.CreateTripDate(cmd.Context(), d); err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}

	cmd.Flags().Int("capacity", 0, "Maximum participants")
	cmd.Flags().Int("min", 0, "Participants needed for the departure to run")

	return cmd
}

func cancelDateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel-date [trip-date-id]",
		Short: "Cancel a departure, refunding and notifying every booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid trip date id: %w", err)
			}
			reason, _ := cmd.Flags().GetString("reason")
			if reason == "" {
				return fmt.Errorf("--reason is required")
			}

			return withApp(func(a *bootstrap.App) error {
				summary, err := a.Cancellations.CancelTripDate(cmd.Context(), id, reason)
				if summary != nil {
					if perr := printJSON(summary); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringP("reason", "r", "", "Reason shown to customers")

	return cmd
}

func thresholdsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thresholds [trip-date-id]",
		Short: "Re-evaluate minimum and sold-out alerts for a departure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid trip date id: %w", err)
			}

			return withApp(func(a *bootstrap.App) error {
				out, err := a.Thresholds.Evaluate(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}
}

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Send remaining-balance reminders that are due now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *bootstrap.App) error {
				report, err := a.Reminders.SendRemainingReminders(cmd.Context(), time.Now())
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
}
