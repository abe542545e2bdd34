package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"arrivo/internal/logging"
	"arrivo/internal/modules/proximity"
	"arrivo/internal/modules/session"
	"arrivo/internal/notify"
	"arrivo/internal/types"
)

// route is a recorded trip: a destination and the fixes seen on the way,
// one per poll.
type route struct {
	Destination struct {
		Name      string  `yaml:"name"`
		Address   string  `yaml:"address"`
		Latitude  float64 `yaml:"latitude"`
		Longitude float64 `yaml:"longitude"`
	} `yaml:"destination"`
	Alarm  proximity.Config `yaml:"alarm"`
	Points []types.Point    `yaml:"points"`
}

func loadRoute(path string) (route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return route{}, err
	}
	// Keys missing from the alarm block keep their defaults.
	r := route{Alarm: proximity.DefaultConfig()}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return route{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(r.Points) == 0 {
		return route{}, fmt.Errorf("%s: route has no points", path)
	}
	return r, nil
}

func newReplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <route.yaml>",
		Short: "Replay a recorded route through an armed alarm and print every event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := loadRoute(args[0])
			if err != nil {
				return err
			}
			_, err = replay(cmd.Context(), r, cmd.OutOrStdout())
			return err
		},
	}
}

// replay feeds each point to an in-process session and ticks once per point.
// It stops early once the alarm disarms itself on arrival.
func replay(ctx context.Context, r route, out io.Writer) ([]proximity.Event, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := r.Alarm
	if cfg == (proximity.Config{}) {
		cfg = proximity.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Points drive the ticks; keep the background loop out of the way.
	cfg.PollIntervalMs = int(time.Hour / time.Millisecond)

	s := session.New(ctx, session.Options{
		ID:     "replay",
		Config: cfg,
		Sink:   notify.NewLogNotifier(logging.NewLogger("replay")),
		Log:    logging.NewLogger("session"),
	})
	defer s.Close()

	dest := proximity.Destination{
		Name:       r.Destination.Name,
		Address:    r.Destination.Address,
		Coordinate: types.Point{Lat: r.Destination.Latitude, Lng: r.Destination.Longitude},
	}
	if err := s.SetDestination(dest); err != nil {
		return nil, err
	}
	if err := s.Arm(); err != nil {
		return nil, err
	}

	var fired []proximity.Event
	for i, p := range r.Points {
		if err := s.UpdatePosition(p, time.Time{}); err != nil {
			return fired, err
		}
		ev := s.Poll()
		st := s.Status()
		remaining := ""
		if st.Reading != nil {
			remaining = st.Reading.Distance + ", " + st.Reading.ETA
		}
		fmt.Fprintf(out, "%3d  %9.5f,%10.5f  %-12s  %s\n", i+1, p.Lat, p.Lng, st.State, remaining)
		if ev.Fired() {
			fired = append(fired, ev)
			n, _ := notify.FromEvent(s.ID(), "", ev, time.Time{})
			fmt.Fprintf(out, "     >> %s: %s\n", n.Title, n.Body)
		}
		if !st.Alarm.Armed {
			break
		}
	}
	return fired, nil
}
