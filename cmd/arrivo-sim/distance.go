package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"arrivo/internal/modules/proximity"
	"arrivo/internal/types"
)

var errInvalidSpeed = errors.New("--speed must be positive")

func newDistanceCommand() *cobra.Command {
	var (
		from, to string
		speed    float64
	)
	cmd := &cobra.Command{
		Use:   "distance --from lat,lng --to lat,lng",
		Short: "Print the great-circle distance and ETA between two points",
		Example: `  arrivo-sim distance --from=40.7128,-74.0060 --to=34.0522,-118.2437
  arrivo-sim distance --from=-33.8688,151.2093 --to=-37.8136,144.9631 --speed 90`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if speed <= 0 {
				return errInvalidSpeed
			}
			a, err := parsePoint(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			b, err := parsePoint(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			r := proximity.Measure(a, b, speed)
			fmt.Fprintf(cmd.OutOrStdout(), "distance: %s (%.3f km)\neta: %s at %.0f km/h\n",
				proximity.FormatDistance(r.Kilometers), r.Kilometers,
				proximity.FormatDuration(r.EtaMinutes), speed)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Start point as lat,lng")
	cmd.Flags().StringVar(&to, "to", "", "End point as lat,lng")
	cmd.Flags().Float64Var(&speed, "speed", proximity.DefaultConfig().AverageSpeedKmh, "Average speed in km/h")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// parsePoint reads "lat,lng" in degrees.
func parsePoint(s string) (types.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return types.Point{}, fmt.Errorf("%q: want lat,lng", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return types.Point{}, fmt.Errorf("latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return types.Point{}, fmt.Errorf("longitude: %w", err)
	}
	return types.Point{Lat: lat, Lng: lng}, nil
}
