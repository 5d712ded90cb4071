package source

// Params are the downloader settings for one attempt.
type Params struct {
	Format        string
	MaxFileSize   string
	UserAgent     string
	PlayerClients []string
	UseCookies    bool
	Retries       int
}

// Strategy maps a 1-based attempt number to download parameters. Later
// attempts trade quality for a better chance of success.
type Strategy func(attempt int) Params

const (
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	mobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

// DefaultStrategy: 720p with a desktop client, then 480p with mobile
// clients, then the smallest available format without cookies.
func DefaultStrategy(attempt int) Params {
	switch {
	case attempt <= 1:
		return Params{
			Format:        "best[height<=720][ext=mp4]/best[height<=720]/best[ext=mp4]/best",
			MaxFileSize:   "300M",
			UserAgent:     desktopUserAgent,
			PlayerClients: []string{"web", "android"},
			UseCookies:    true,
			Retries:       3,
		}
	case attempt == 2:
		return Params{
			Format:        "best[height<=480][ext=mp4]/best[height<=480]/best",
			MaxFileSize:   "200M",
			UserAgent:     mobileUserAgent,
			PlayerClients: []string{"ios", "android"},
			UseCookies:    true,
			Retries:       2,
		}
	default:
		return Params{
			Format:      "worst[ext=mp4]/worst",
			MaxFileSize: "100M",
			Retries:     1,
		}
	}
}
