package models

// ExtractRequest is the payload for POST /api/v1/extract.
type ExtractRequest struct {
	// URL is the target listing page. Required.
	URL string `json:"url" binding:"required,url"`

	// Fields is the requested field set. Default: price, address,
	// bedrooms, bathrooms, sqft, description.
	Fields []string `json:"fields,omitempty"`

	// Timeout is the maximum duration in seconds for the entire job,
	// including retries. Default: 90. Max: 300.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=300"`

	// Credentials are optional site cookies (name -> value).
	Credentials map[string]string `json:"credentials,omitempty"`

	// MaxAge enables the record cache: a cached record younger than
	// MaxAge milliseconds is returned without touching the site.
	// Default: 0 (no cache).
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *ExtractRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 90
	}
	if len(r.Fields) == 0 {
		r.Fields = append([]string(nil), DefaultFields...)
	}
}

// BatchRequest is the payload for POST /api/v1/batch/extract.
type BatchRequest struct {
	// URLs are the target pages, max 100 per batch.
	URLs []string `json:"urls" binding:"required,min=1,dive,url"`

	// Fields applies to every URL in the batch.
	Fields []string `json:"fields,omitempty"`

	// Timeout is the per-job timeout in seconds. Default: 90.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=300"`

	// WebhookURL, when set, receives one signed event per completed job.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}
