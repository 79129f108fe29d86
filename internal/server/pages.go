package server

import (
	"fmt"
	"html"
	"math"
	"net/http"
	"time"

	"authbot/internal/callback"
)

// setSecurityHeaders sets restrictive headers for HTML responses.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

const pageStyle = `
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif;
            background: #f4f5f7;
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            color: #1f2933;
        }
        .container {
            text-align: center;
            padding: 2.5rem;
            background: #fff;
            border-radius: 12px;
            box-shadow: 0 4px 16px rgba(0, 0, 0, 0.08);
            max-width: 480px;
            margin: 1rem;
        }
        h1 { font-size: 1.5rem; font-weight: 600; margin-bottom: 0.5rem; }
        p { color: #52606d; line-height: 1.6; margin-top: 1rem; }
        .code {
            font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
            font-size: 2rem;
            letter-spacing: 0.25rem;
            margin-top: 1.5rem;
            padding: 0.75rem 1rem;
            background: #eef2f7;
            border-radius: 8px;
            user-select: all;
        }
        .error { color: #c53030; font-weight: 500; }
        .footer { margin-top: 2rem; font-size: 0.8rem; color: #9aa5b1; }`

func writePage(w http.ResponseWriter, status int, title, body string) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s - authbot</title>
    <style>%s
    </style>
</head>
<body>
    <div class="container">
%s
        <div class="footer">authbot</div>
    </div>
</body>
</html>`, html.EscapeString(title), pageStyle, body)
}

// renderSuccessPage shows the magic code the user types back into the chat.
func renderSuccessPage(w http.ResponseWriter, conf *callback.Confirmation, now time.Time) {
	minutes := int(math.Ceil(conf.ExpiresAt.Sub(now).Minutes()))
	if minutes < 1 {
		minutes = 1
	}

	next := "Return to the conversation and type this code to finish signing in."
	if !conf.Delivered {
		next = "We could not post to your conversation. Type this code in your conversation with the bot to finish signing in."
	}

	body := fmt.Sprintf(`        <h1>Hi %s, one more step</h1>
        <div class="code">%s</div>
        <p>%s</p>
        <p>The code is valid for %d minute(s) and can be used once.</p>`,
		html.EscapeString(conf.DisplayName),
		html.EscapeString(conf.MagicCode),
		html.EscapeString(next),
		minutes)

	writePage(w, http.StatusOK, "Sign-in almost complete", body)
}

// renderErrorPage shows a generic failure. Details stay in the logs.
func renderErrorPage(w http.ResponseWriter, status int, message string) {
	body := fmt.Sprintf(`        <h1>Sign-in failed</h1>
        <p class="error">%s</p>
        <p>Return to the conversation and try again.</p>`, html.EscapeString(message))

	writePage(w, status, "Sign-in failed", body)
}
