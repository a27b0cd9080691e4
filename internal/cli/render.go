package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"aisquery/internal/domain"
)

const tsLayout = "2006-01-02 15:04"

func render(w io.Writer, env domain.ResponseEnvelope, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	case "text":
		return renderText(w, env)
	case "table", "":
		return renderTable(w, env)
	default:
		return fmt.Errorf("unknown format %q: use table, text or json", format)
	}
}

func renderText(w io.Writer, env domain.ResponseEnvelope) error {
	if _, err := fmt.Fprintln(w, env.Message); err != nil {
		return err
	}
	if env.Summary != "" {
		_, err := fmt.Fprintln(w, env.Summary)
		return err
	}
	return nil
}

func renderTable(w io.Writer, env domain.ResponseEnvelope) error {
	if !env.Success {
		pterm.Error.WithWriter(w).Println(env.Message)
		return nil
	}
	pterm.Success.WithWriter(w).Println(env.Message)

	var data pterm.TableData
	switch r := env.Result.(type) {
	case *domain.TrajectoryResult:
		data = trajectoryRows(r)
	case *domain.LoiteringResult:
		data = loiteringRows(r)
	case *domain.ListingResult:
		data = listingRows(r)
	}
	if len(data) > 1 {
		if err := pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render(); err != nil {
			return err
		}
	}
	if env.Summary != "" {
		_, err := fmt.Fprintln(w, env.Summary)
		return err
	}
	return nil
}

func trajectoryRows(r *domain.TrajectoryResult) pterm.TableData {
	data := pterm.TableData{{"Vessel", "Time (UTC)", "Lat", "Lon", "SOG", "COG"}}
	for _, t := range r.Tracks {
		for _, p := range t.Points {
			data = append(data, []string{
				t.Vessel.Label(),
				p.Timestamp.UTC().Format(tsLayout),
				coord(p.Lat),
				coord(p.Lon),
				knots(p.SOG),
				strconv.FormatFloat(p.COG, 'f', 0, 64),
			})
		}
	}
	return data
}

func loiteringRows(r *domain.LoiteringResult) pterm.TableData {
	data := pterm.TableData{{"Vessel", "Start (UTC)", "End (UTC)", "Dwell", "Lat", "Lon", "Avg SOG"}}
	for _, e := range r.Events {
		v := domain.Vessel{MMSI: e.MMSI, Name: e.VesselName}
		data = append(data, []string{
			v.Label(),
			e.StartTime.UTC().Format(tsLayout),
			e.EndTime.UTC().Format(tsLayout),
			e.Dwell.Round(time.Minute).String(),
			coord(e.CentroidLat),
			coord(e.CentroidLon),
			knots(e.AvgSpeed),
		})
	}
	return data
}

func listingRows(r *domain.ListingResult) pterm.TableData {
	data := pterm.TableData{{"Vessel", "Reports", "First seen", "Last seen", "Last position"}}
	for _, a := range r.Vessels {
		data = append(data, []string{
			a.Vessel.Label(),
			strconv.Itoa(a.PointCount),
			a.FirstSeen.UTC().Format(tsLayout),
			a.LastSeen.UTC().Format(tsLayout),
			coord(a.LastPosition.Lat) + ", " + coord(a.LastPosition.Lon),
		})
	}
	return data
}

func coord(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
func knots(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) + " kn" }
