package main

import (
	"encoding/json"
	"flag"
	"hash/fnv"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

type volcano struct {
	VNum   string  `json:"vnum"`
	Name   string  `json:"vName"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Type   string  `json:"vType"`
	Region string  `json:"region"`
	Obs    string  `json:"obs"`
}

type earthquake struct {
	EventID string  `json:"eventId"`
	Time    string  `json:"time"`
	Mag     float64 `json:"mag"`
	DepthKm float64 `json:"depthKm"`
	Place   string  `json:"place"`
}

var catalog = []volcano{
	{VNum: "211060", Name: "Etna", Lat: 37.748, Lon: 14.999, Type: "Stratovolcano", Region: "Italy", Obs: "INGV"},
	{VNum: "211040", Name: "Stromboli", Lat: 38.789, Lon: 15.213, Type: "Stratovolcano", Region: "Italy", Obs: "INGV"},
	{VNum: "211020", Name: "Vesuvius", Lat: 40.821, Lon: 14.426, Type: "Somma", Region: "Italy", Obs: "INGV"},
	{VNum: "332010", Name: "Kilauea", Lat: 19.421, Lon: -155.287, Type: "Shield", Region: "Hawaii", Obs: "HVO"},
	{VNum: "283030", Name: "Fujisan", Lat: 35.361, Lon: 138.728, Type: "Stratovolcano", Region: "Japan", Obs: "JMA"},
	{VNum: "321050", Name: "St. Helens", Lat: 46.2, Lon: -122.18, Type: "Stratovolcano", Region: "Cascades", Obs: "CVO"},
	{VNum: "373080", Name: "Hekla", Lat: 63.983, Lon: -19.666, Type: "Stratovolcano", Region: "Iceland", Obs: "IMO"},
}

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /volcanoes/search", func(w http.ResponseWriter, r *http.Request) {
		q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
		results := []volcano{}
		for _, v := range catalog {
			if q != "" && (strings.Contains(strings.ToLower(v.Name), q) || v.VNum == q) {
				results = append(results, v)
			}
		}
		writeJSON(w, map[string]any{"results": results})
	})

	mux.HandleFunc("GET /volcanoes", func(w http.ResponseWriter, r *http.Request) {
		page := intParam(r, "page", 1)
		limit := intParam(r, "limit", 50)
		start := (page - 1) * limit
		end := start + limit
		if start > len(catalog) {
			start = len(catalog)
		}
		if end > len(catalog) {
			end = len(catalog)
		}
		writeJSON(w, map[string]any{
			"page":    page,
			"limit":   limit,
			"total":   len(catalog),
			"pages":   (len(catalog) + limit - 1) / limit,
			"results": catalog[start:end],
		})
	})

	mux.HandleFunc("GET /volcanoes/{vnum}/indicators", func(w http.ResponseWriter, r *http.Request) {
		v, ok := lookup(r.PathValue("vnum"))
		if !ok {
			http.Error(w, `{"detail":"volcano not found"}`, http.StatusNotFound)
			return
		}
		quakes := earthquakes(v, r)
		writeJSON(w, indicators(v, quakes))
	})

	mux.HandleFunc("GET /volcanoes/{vnum}/earthquakes", func(w http.ResponseWriter, r *http.Request) {
		v, ok := lookup(r.PathValue("vnum"))
		if !ok {
			http.Error(w, `{"detail":"volcano not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"events": earthquakes(v, r)})
	})

	mux.HandleFunc("GET /risk-map", func(w http.ResponseWriter, r *http.Request) {
		days := intParam(r, "days", 30)
		end := time.Now().UTC()
		q := r.URL.Query()
		q.Set("start", end.AddDate(0, 0, -days).Format("2006-01-02"))
		q.Set("end", end.Format("2006-01-02"))
		r.URL.RawQuery = q.Encode()

		results := make([]map[string]any, 0, len(catalog))
		for _, v := range catalog {
			report := indicators(v, earthquakes(v, r))
			badge := report["risk_badge"].(map[string]any)
			results = append(results, map[string]any{
				"vnum":  v.VNum,
				"vName": v.Name,
				"lat":   v.Lat,
				"lon":   v.Lon,
				"score": badge["score_0_100"],
				"color": badge["color"],
				"basis": badge["basis"],
			})
		}
		writeJSON(w, map[string]any{"results": results})
	})

	logger := log.New(log.Writer(), "backend-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func lookup(vnum string) (volcano, bool) {
	for _, v := range catalog {
		if v.VNum == vnum {
			return v, true
		}
	}
	return volcano{}, false
}

// earthquakes generates a deterministic event list per volcano and window so repeated
// requests return the same data.
func earthquakes(v volcano, r *http.Request) []earthquake {
	q := r.URL.Query()
	end, err := time.Parse("2006-01-02", q.Get("end"))
	if err != nil {
		end = time.Now().UTC().Truncate(24 * time.Hour)
	}
	start, err := time.Parse("2006-01-02", q.Get("start"))
	if err != nil {
		start = end.AddDate(0, 0, -30)
	}
	minMag, _ := strconv.ParseFloat(q.Get("minmag"), 64)

	h := fnv.New64a()
	_, _ = h.Write([]byte(v.VNum + start.Format("20060102") + end.Format("20060102")))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	days := int(end.Sub(start).Hours()/24) + 1
	activity := 0.2 + 3*rng.Float64()
	var out []earthquake
	for d := 0; d < days; d++ {
		n := rng.Intn(int(activity) + 2)
		for i := 0; i < n; i++ {
			mag := math.Round((rng.ExpFloat64()*0.7)*10) / 10
			if mag < minMag {
				continue
			}
			ts := start.AddDate(0, 0, d).Add(time.Duration(rng.Intn(86400)) * time.Second)
			out = append(out, earthquake{
				EventID: v.VNum + "-" + strconv.Itoa(len(out)+1),
				Time:    ts.Format(time.RFC3339),
				Mag:     mag,
				DepthKm: math.Round(rng.Float64()*150) / 10,
				Place:   v.Name + " area",
			})
		}
	}
	return out
}

func indicators(v volcano, quakes []earthquake) map[string]any {
	now := time.Now().UTC()
	var n7, n30 int
	var mmax, mmax7 float64
	var depths, depths7 []float64
	var first, last time.Time
	for _, q := range quakes {
		ts, _ := time.Parse(time.RFC3339, q.Time)
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
		mmax = math.Max(mmax, q.Mag)
		depths = append(depths, q.DepthKm)
		age := now.Sub(ts)
		if age <= 30*24*time.Hour {
			n30++
		}
		if age <= 7*24*time.Hour {
			n7++
			mmax7 = math.Max(mmax7, q.Mag)
			depths7 = append(depths7, q.DepthKm)
		}
	}

	ind := map[string]any{"n_total": len(quakes), "n7": n7, "n30": n30}
	if len(quakes) > 0 {
		span := int(last.Sub(first).Hours()/24) + 1
		ind["days_span"] = span
		ind["n_per_day"] = float64(len(quakes)) / float64(span)
		ind["mmax"] = mmax
		ind["depth_median_km"] = median(depths)
	}
	if n7 > 0 {
		ind["mmax7"] = mmax7
		ind["depth_median_7d_km"] = median(depths7)
	}

	score := math.Min(100, float64(n7)*4+mmax7*10)
	color := "green"
	switch {
	case score >= 75:
		color = "red"
	case score >= 50:
		color = "orange"
	case score >= 25:
		color = "yellow"
	}
	confidence := "high"
	if len(quakes) < 10 {
		confidence = "low"
	}

	return map[string]any{
		"volcano":    v,
		"indicators": ind,
		"risk_badge": map[string]any{
			"color":       color,
			"score_0_100": math.Round(score*10) / 10,
			"basis":       "7-day event rate and peak magnitude",
		},
		"official_status": map[string]any{"alertLevel": "NORMAL", "colorCode": "GREEN"},
		"confidence":      confidence,
		"tooltips": map[string]string{
			"n7":   "Events within the radius in the last 7 days",
			"mmax": "Largest magnitude in the window",
		},
		"computedAt": now.Format(time.RFC3339),
	}
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func intParam(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
