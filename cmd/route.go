package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/zap"

	"github.com/atlasworks/geoservices/pkg/valhalla"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Compute a route between waypoints",
	Long: `Computes a point-to-point route. Waypoints are lon,lat pairs; --via may be
repeated for intermediate stops.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		via, _ := cmd.Flags().GetStringArray("via")
		mode, _ := cmd.Flags().GetString("mode")
		shortest, _ := cmd.Flags().GetBool("shortest")

		waypoints, err := parseWaypoints(from, via, to)
		if err != nil {
			return err
		}

		client := valhalla.NewClient(cfg.Routing.APIKey,
			valhalla.WithBaseURL(cfg.Routing.BaseURL),
			valhalla.WithUnits(cfg.Routing.Units),
		)

		log := zap.L().With(zap.String("command", "route"))
		log.Info("routing", zap.Int("waypoints", len(waypoints)), zap.String("mode", mode))

		result, err := client.Route(ctx, valhalla.RouteRequest{
			Waypoints: waypoints,
			Mode:      valhalla.TravelMode(mode),
			Shortest:  shortest,
		})
		if err != nil {
			return eris.Wrap(err, "route")
		}

		if !result.Found {
			fmt.Println("No route found")
			return nil
		}

		fmt.Printf("Length:   %.3f %s\n", result.Length, cfg.Routing.Units)
		fmt.Printf("Duration: %.0f s\n", result.Duration)
		if ls := result.LineString(); ls != nil {
			shape, err := wkt.Marshal(ls)
			if err != nil {
				return eris.Wrap(err, "route: encode shape")
			}
			fmt.Println(shape)
		}
		return nil
	},
}

func init() {
	routeCmd.Flags().String("from", "", "start waypoint as lon,lat")
	routeCmd.Flags().String("to", "", "end waypoint as lon,lat")
	routeCmd.Flags().StringArray("via", nil, "intermediate waypoint as lon,lat (repeatable)")
	routeCmd.Flags().String("mode", string(valhalla.ModeCar), "travel mode: walk, car, public_transport, bicycle")
	routeCmd.Flags().Bool("shortest", false, "optimize car routes for distance instead of time")
	_ = routeCmd.MarkFlagRequired("from")
	_ = routeCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(routeCmd)
}

// parseWaypoints assembles the ordered waypoint list from the from/via/to
// flags.
func parseWaypoints(from string, via []string, to string) ([]valhalla.Waypoint, error) {
	raw := make([]string, 0, len(via)+2)
	raw = append(raw, from)
	raw = append(raw, via...)
	raw = append(raw, to)

	waypoints := make([]valhalla.Waypoint, 0, len(raw))
	for _, s := range raw {
		wp, err := parseWaypoint(s)
		if err != nil {
			return nil, err
		}
		waypoints = append(waypoints, wp)
	}
	return waypoints, nil
}

func parseWaypoint(s string) (valhalla.Waypoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return valhalla.Waypoint{}, eris.Errorf("route: waypoint %q is not lon,lat", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return valhalla.Waypoint{}, eris.Wrapf(err, "route: parse longitude in %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return valhalla.Waypoint{}, eris.Wrapf(err, "route: parse latitude in %q", s)
	}
	return valhalla.Waypoint{Longitude: lon, Latitude: lat}, nil
}
