package snapshot

import (
	"time"

	"github.com/hazyhaar/pagesnap/snapshot/internal/capture"
	"github.com/hazyhaar/pagesnap/snapshot/internal/materialize"
	"github.com/hazyhaar/pagesnap/snapshot/internal/rewrite"
)

// Report describes one capture.
type Report struct {
	URL      string `json:"url"`
	FinalURL string `json:"final_url"`
	Output   string `json:"output"`

	Responses  int64 `json:"responses"`  // responses observed
	Captured   int   `json:"captured"`   // distinct URLs with a stored body
	Written    int   `json:"written"`    // asset files written
	Skipped    int   `json:"skipped"`    // cross-origin, root, invalid or superseded
	Failed     int   `json:"failed"`     // asset writes that failed
	LazyImages int   `json:"lazy_images"`

	Styles     int `json:"styles"`
	Attributes int `json:"attributes"`
	Hydration  int `json:"hydration"`

	// Degraded holds the reason the dynamic passes were abandoned, if any.
	Degraded string        `json:"degraded,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`

	// Assets is the per-asset outcome list, in URL order.
	Assets []AssetResult `json:"assets,omitempty"`
}

// AssetResult is the outcome for one captured URL.
type AssetResult struct {
	URL     string `json:"url"`
	Path    string `json:"path,omitempty"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func (r *Report) addCapture(st capture.Stats, captured int) {
	r.Responses = st.Observed
	r.Captured = captured
}

func (r *Report) addMaterialize(sum materialize.Summary) {
	r.Written, r.Skipped, r.Failed = sum.Written(), sum.Skipped(), sum.Failed()
	r.Assets = make([]AssetResult, 0, len(sum.Results))
	for _, res := range sum.Results {
		a := AssetResult{URL: res.URL, Path: res.Path, Outcome: res.Outcome.String()}
		if res.Err != nil {
			a.Error = res.Err.Error()
		}
		r.Assets = append(r.Assets, a)
	}
}

func (r *Report) addRewrite(st rewrite.Stats) {
	r.Styles, r.Attributes, r.Hydration = st.Styles, st.Attributes, st.Hydration
}
