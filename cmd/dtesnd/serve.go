package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/dtesn/callrecording"
	"github.com/sarchlab/dtesn/core"
	"github.com/sarchlab/dtesn/httpprovider"
	"github.com/sarchlab/dtesn/memprovider"
	"github.com/sarchlab/dtesn/monitoring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host an in-memory DTESN runtime over the provider protocol",
	Args:  cobra.NoArgs,
	Run:   runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":3001",
		"address the provider protocol listens on (env DTESND_ADDR)")
	serveCmd.Flags().String("db", "",
		"call log database name without the .sqlite3 suffix, "+
			"empty picks a generated one (env DTESND_DB)")
	serveCmd.Flags().Int("monitor-port", 0,
		"port for the monitoring server, 0 picks a random one "+
			"(env DTESND_MONITOR)")
	serveCmd.Flags().Bool("open", false,
		"open the monitoring server in a browser")
	serveCmd.Flags().String("env-file", ".env",
		"environment file loaded before reading settings")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) {
	loadEnvFile(cmd)

	addr := stringSetting(cmd, "addr", "DTESND_ADDR", ":3001")
	dbPath := stringSetting(cmd, "db", "DTESND_DB", "")
	monitorPort := intSetting(cmd, "monitor-port", "DTESND_MONITOR", 0)

	open, err := cmd.Flags().GetBool("open")
	dieOnErr(err)

	recorder, reader := openCallLog(dbPath)

	d := &daemon{
		backend: memprovider.MakeBuilder().Build(),
		reader:  reader,
	}
	d.recorded = newRecordingBackend(d.backend, recorder)

	monitor := monitoring.NewMonitor()
	if monitorPort != 0 {
		monitor.WithPortNumber(monitorPort)
	}
	monitor.StartServer()

	if open {
		err := browser.OpenURL(
			fmt.Sprintf("http://localhost:%d", monitor.Port()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open the dashboard: %s\n", err)
		}
	}

	listener, err := net.Listen("tcp", addr)
	dieOnErr(err)

	fmt.Fprintf(os.Stderr,
		"Serving the DTESN provider protocol on http://localhost:%d/api/op\n",
		listener.Addr().(*net.TCPAddr).Port)

	err = http.Serve(listener, d.router())
	dieOnErr(err)
}

// loadEnvFile loads the environment file if it exists. A missing file is
// fine; settings then come from flags and the process environment.
func loadEnvFile(cmd *cobra.Command) {
	envFile, err := cmd.Flags().GetString("env-file")
	dieOnErr(err)

	err = godotenv.Load(envFile)
	if err != nil && !os.IsNotExist(err) {
		log.Fatalf("Error loading %s: %s", envFile, err)
	}
}

// stringSetting resolves one setting with flags winning over the
// environment, and the environment winning over the default.
func stringSetting(cmd *cobra.Command, flag, envKey, fallback string) string {
	if cmd.Flags().Changed(flag) {
		value, err := cmd.Flags().GetString(flag)
		dieOnErr(err)

		return value
	}

	if value := os.Getenv(envKey); value != "" {
		return value
	}

	return fallback
}

func intSetting(cmd *cobra.Command, flag, envKey string, fallback int) int {
	if cmd.Flags().Changed(flag) {
		value, err := cmd.Flags().GetInt(flag)
		dieOnErr(err)

		return value
	}

	if value := os.Getenv(envKey); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			log.Fatalf("Error: %s must be a number, got %q", envKey, value)
		}

		return n
	}

	return fallback
}

// daemon ties the served back-end to its diagnostic routes.
type daemon struct {
	backend  *memprovider.Provider
	recorded *recordingBackend
	reader   callrecording.Reader
}

func (d *daemon) router() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/api/op", httpprovider.NewHandler(d.recorded))
	r.HandleFunc("/api/calls", d.listCalls)
	r.HandleFunc("/api/refs", d.listRefs)
	r.HandleFunc("/api/version", d.version)

	return r
}

func (d *daemon) listCalls(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Error: bad limit %q", s)
			return
		}

		limit = n
	}

	d.recorded.flush()

	calls, total, err := d.reader.Query(
		r.Context(),
		callrecording.CallTable,
		callrecording.QueryParams{
			Limit:   limit,
			OrderBy: "StartNano DESC",
		})
	dieOnErr(err)

	rsp := struct {
		Total int   `json:"total"`
		Calls []any `json:"calls"`
	}{Total: total, Calls: calls}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (d *daemon) listRefs(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "[")
	for i, ref := range d.backend.Refs() {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "%d", ref)
	}
	fmt.Fprint(w, "]")
}

func (d *daemon) version(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"version\":%q}", core.Version())
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
