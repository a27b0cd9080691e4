package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"aisquery/internal/domain"
)

const insertChunk = 1000

func init() {
	cmd := &cobra.Command{
		Use:   "load <file.csv>...",
		Short: "Load AIS position reports from CSV",
		Long: "Load AIS reports in the MarineCadastre CSV layout (MMSI, BaseDateTime, LAT, LON, SOG, COG, VesselName, IMO, CallSign, VesselType) " +
			"into the store. Rows with an invalid MMSI, position, timestamp or speed are skipped.",
		Args: cobra.MinimumNArgs(1),
		Run:  runLoad,
	}

	RootCmd.AddCommand(cmd)
}

func runLoad(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	store, err := openStore(cmd, cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer store.Close()

	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			exitErr("open "+path, err)
		}
		batch, err := readAISCSV(f)
		_ = f.Close()
		if err != nil {
			exitErr("read "+path, err)
		}
		if err := importBatch(cmd.Context(), store, batch); err != nil {
			exitErr("import "+path, err)
		}
		pterm.Success.Printf("%s: %d vessels, %d reports loaded, %d rows skipped\n", path, len(batch.vessels), batch.reports, batch.skipped)
	}
}

type aisBatch struct {
	vessels []domain.Vessel
	points  map[string][]domain.TrajectoryPoint
	reports int
	skipped int
}

type positionWriter interface {
	UpsertVessel(ctx context.Context, v domain.Vessel) error
	InsertPositions(ctx context.Context, vesselID string, points []domain.TrajectoryPoint) error
}

func importBatch(ctx context.Context, store positionWriter, b aisBatch) error {
	for _, v := range b.vessels {
		if err := store.UpsertVessel(ctx, v); err != nil {
			return fmt.Errorf("vessel %s: %w", v.MMSI, err)
		}
		points := b.points[v.VesselID]
		for start := 0; start < len(points); start += insertChunk {
			end := min(start+insertChunk, len(points))
			if err := store.InsertPositions(ctx, v.VesselID, points[start:end]); err != nil {
				return fmt.Errorf("positions for %s: %w", v.MMSI, err)
			}
		}
	}
	return nil
}

var columnAliases = map[string]string{
	"mmsi":         "mmsi",
	"basedatetime": "ts",
	"timestamp":    "ts",
	"lat":          "lat",
	"lon":          "lon",
	"sog":          "sog",
	"cog":          "cog",
	"vesselname":   "name",
	"name":         "name",
	"imo":          "imo",
	"callsign":     "call_sign",
	"call_sign":    "call_sign",
	"vesseltype":   "vessel_type",
	"vessel_type":  "vessel_type",
	"interpolated": "interpolated",
}

// readAISCSV groups rows by MMSI. The vessel id is the MMSI; the first
// non-empty name, IMO, call sign and type seen for an MMSI win.
func readAISCSV(r io.Reader) (aisBatch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return aisBatch{}, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		if key, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			cols[key] = i
		}
	}
	for _, required := range []string{"mmsi", "ts", "lat", "lon", "sog"} {
		if _, ok := cols[required]; !ok {
			return aisBatch{}, fmt.Errorf("missing column %q", required)
		}
	}

	b := aisBatch{points: map[string][]domain.TrajectoryPoint{}}
	vessels := map[string]*domain.Vessel{}
	field := func(rec []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return aisBatch{}, err
		}

		mmsi := field(rec, "mmsi")
		p, ok := parsePoint(field(rec, "ts"), field(rec, "lat"), field(rec, "lon"))
		if ok {
			ok = parseMotion(&p, field(rec, "sog"), field(rec, "cog"), field(rec, "interpolated"))
		}
		if !domain.ValidMMSI(mmsi) || !ok {
			b.skipped++
			continue
		}

		v, seen := vessels[mmsi]
		if !seen {
			v = &domain.Vessel{VesselID: mmsi, MMSI: mmsi}
			vessels[mmsi] = v
		}
		fillEmpty(&v.Name, field(rec, "name"))
		fillEmpty(&v.IMO, strings.TrimPrefix(strings.ToUpper(field(rec, "imo")), "IMO"))
		fillEmpty(&v.CallSign, strings.ToUpper(field(rec, "call_sign")))
		fillEmpty(&v.Type, field(rec, "vessel_type"))

		b.points[mmsi] = append(b.points[mmsi], p)
		b.reports++
	}

	for _, v := range vessels {
		if !domain.ValidIMO(v.IMO) {
			v.IMO = ""
		}
		b.vessels = append(b.vessels, *v)
	}
	sort.Slice(b.vessels, func(i, j int) bool { return b.vessels[i].MMSI < b.vessels[j].MMSI })
	return b, nil
}

var tsLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

func parsePoint(ts, lat, lon string) (domain.TrajectoryPoint, bool) {
	var p domain.TrajectoryPoint
	var err error
	if p.Lat, err = strconv.ParseFloat(lat, 64); err != nil || p.Lat < -90 || p.Lat > 90 {
		return p, false
	}
	if p.Lon, err = strconv.ParseFloat(lon, 64); err != nil || p.Lon < -180 || p.Lon > 180 {
		return p, false
	}
	for _, layout := range tsLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			p.Timestamp = t.UTC()
			return p, true
		}
	}
	return p, false
}

// sogUnavailable is the AIS "speed not available" value.
const sogUnavailable = 102.3

// parseMotion fills speed, course and the interpolation flag. A report
// without a usable speed is rejected; a blank course reads as 0.
func parseMotion(p *domain.TrajectoryPoint, sog, cog, interpolated string) bool {
	v, err := strconv.ParseFloat(sog, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v >= sogUnavailable {
		return false
	}
	p.SOG = v
	if cog != "" {
		c, err := strconv.ParseFloat(cog, 64)
		if err != nil || math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
		p.COG = c
	}
	if interpolated != "" {
		f, err := strconv.ParseBool(interpolated)
		if err != nil {
			return false
		}
		p.Interpolated = f
	}
	return true
}

func fillEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
