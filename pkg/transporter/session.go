package transporter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"

	"github.com/alpacanetworks/telemon/pkg/config"
	"github.com/alpacanetworks/telemon/pkg/logger"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// NewSession builds the HTTP client shared by every exchange of a
// Client. Uploads are never retried: a failed ping stays pending until
// the next scheduled batch.
func NewSession(settings config.Settings) (*retryablehttp.Client, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = noRetry
	client.Logger = logger.NewHTTPLogger(log.Logger)

	tlsConfig := &tls.Config{}
	if settings.CaCert != "" {
		caCertPool := x509.NewCertPool()
		caCert, err := os.ReadFile(settings.CaCert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = caCertPool
	}

	tlsConfig.InsecureSkipVerify = settings.UseSSL && !settings.SSLVerify

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	client.HTTPClient.Transport = transport
	client.HTTPClient.Timeout = settings.Timeout

	return client, nil
}

func noRetry(_ context.Context, _ *http.Response, _ error) (bool, error) {
	return false, nil
}
