package cli

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/dental-gateway/client"
	"github.com/tbourn/dental-gateway/internal/sysutil"
)

const defaultGatewayURL = "http://localhost:8080"

// remoteFlags select the gateway a client command talks to.
type remoteFlags struct {
	url    string
	apiKey string
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "Gateway base URL (env GATEWAY_URL, default "+defaultGatewayURL+")")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "API key (env GATEWAY_API_KEY)")
}

func (f *remoteFlags) client() (*client.Client, error) {
	key := sysutil.FirstNonEmpty(f.apiKey, os.Getenv("GATEWAY_API_KEY"))
	if key == "" {
		return nil, errors.New("an API key is required: pass --api-key or set GATEWAY_API_KEY")
	}
	base := sysutil.FirstNonEmpty(f.url, os.Getenv("GATEWAY_URL"), defaultGatewayURL)
	return client.New(base, key), nil
}

// ---------- submit ----------

func newSubmitCmd() *cobra.Command {
	var (
		remote      remoteFlags
		refs        client.Refs
		contentType string
		idemKey     string
		wait        bool
		interval    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit <image>",
		Short: "Submit a radiograph to a running gateway",
		Long:  "Upload an image for analysis and print the job. With --wait, poll until the job is completed or failed.",
		Example: `  gateway submit scan.jpg --patient-ref P-1001
  gateway submit pano.png --idempotency-key 7f3c --wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := remote.client()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ct := contentType
			if ct == "" {
				if ct, err = sniffContentType(f, args[0]); err != nil {
					return err
				}
			}

			sub, err := c.SubmitIdempotent(cmd.Context(), idemKey, f, filepath.Base(args[0]), ct, refs)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !wait {
				return printJSON(out, sub)
			}
			res, err := c.Wait(cmd.Context(), sub.JobID, interval)
			if err != nil {
				return err
			}
			return printJSON(out, res)
		},
	}

	remote.register(cmd)
	cmd.Flags().StringVar(&refs.PatientRef, "patient-ref", "", "Patient reference stored with the job")
	cmd.Flags().StringVar(&refs.DoctorRef, "doctor-ref", "", "Doctor reference stored with the job")
	cmd.Flags().StringVar(&refs.ClinicRef, "clinic-ref", "", "Clinic reference stored with the job")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Image content type (default: from extension or content)")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "Idempotency-Key header; retries with the same key return the same job")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "Poll interval for --wait")

	return cmd
}

// sniffContentType guesses the image type from the file extension, falling
// back to the first 512 bytes. f is rewound afterwards.
func sniffContentType(f *os.File, name string) (string, error) {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); strings.HasPrefix(ct, "image/") {
		return ct, nil
	}
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

// ---------- poll ----------

func newPollCmd() *cobra.Command {
	var (
		remote   remoteFlags
		wait     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "poll <job-id>",
		Short: "Fetch the status or result of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := remote.client()
			if err != nil {
				return err
			}
			var res *client.PollResult
			if wait {
				res, err = c.Wait(cmd.Context(), args[0], interval)
			} else {
				res, err = c.Poll(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Status == client.StatusFailed {
				return fmt.Errorf("job %s failed: %s", res.JobID, res.ErrorMessage)
			}
			return nil
		},
	}

	remote.register(cmd)
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "Poll interval for --wait")

	return cmd
}
