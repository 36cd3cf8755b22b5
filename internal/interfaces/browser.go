package interfaces

import (
	"context"

	"github.com/ternarybob/seoscan/internal/models"
)

// BrowserWorker renders pages in a shared headless browser process using an
// isolated context per call.
type BrowserWorker interface {
	// RenderPage loads the URL under the given device profile, waits for
	// network idle, and returns the rendered DOM plus the tracking calls
	// and anchors observed on the page.
	RenderPage(ctx context.Context, url string, profile models.DeviceVariant) (*models.RenderResult, error)

	Close() error
}
