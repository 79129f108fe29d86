package dialog

import (
	"bytes"
	"fmt"
	"math"
	"text/template"
	"time"

	"authbot/pkg/logging"

	"github.com/Masterminds/sprig/v3"
)

// Message template names. Any of them can be overridden from configuration.
const (
	MsgWelcome        = "welcome"
	MsgSignIn         = "signIn"
	MsgSignInReprompt = "signInReprompt"
	MsgCodePrompt     = "codePrompt"
	MsgInvalidCode    = "invalidCode"
	MsgTooManyCodes   = "tooManyCodes"
	MsgCodeExpired    = "codeExpired"
	MsgAuthenticated  = "authenticated"
	MsgMenu           = "menu"
	MsgLoggedOut      = "loggedOut"
	MsgGoodbye        = "goodbye"
	MsgTryAgain       = "tryAgain"
	MsgReauth         = "reauth"
	MsgActionFailed   = "actionFailed"
	MsgLinkFailed     = "linkFailed"
	MsgStillSignedIn  = "stillSignedIn"
)

var defaultTemplates = map[string]string{
	MsgWelcome:        `Welcome! This bot retrieves the latest email for you after you login.`,
	MsgSignIn:         `You must first sign into your account. Please click this link to sign in: {{ .Link }}`,
	MsgSignInReprompt: `Please click the sign-in link: {{ .Link }}`,
	MsgCodePrompt: `Welcome {{ .Name }}! ` +
		`{{- if .Code }} Your code is {{ .Code }}.{{ else }} Please copy the code shown in your browser.{{ end }}` +
		` Paste it here to complete sign-in{{ if .ValidFor }} within {{ .ValidFor }}{{ end }}, or type 'quit' to end.`,
	MsgInvalidCode:   `hmm... Looks like that was an invalid code. Please try again.{{ if .Remaining }} ({{ .Remaining }} {{ if eq .Remaining 1 }}attempt{{ else }}attempts{{ end }} left){{ end }}`,
	MsgTooManyCodes:  `Too many invalid codes. Let's start over. Please click this link to sign in: {{ .Link }}`,
	MsgCodeExpired:   `That sign-in has expired. Please click this link to sign in again: {{ .Link }}`,
	MsgAuthenticated: `Welcome {{ .Name }}! You are currently logged in. {{ template "menuText" . }}`,
	MsgMenu:          `{{ template "menuText" . }}`,
	MsgLoggedOut:     `You have logged out. Goodbye.`,
	MsgGoodbye:       `Goodbye.`,
	MsgTryAgain:      `The sign-in service is not responding right now. Please try again in a moment.`,
	MsgReauth:        `Your sign-in has expired. Please click this link to sign in again: {{ .Link }}`,
	MsgActionFailed:  `Sorry, I couldn't {{ .Action }} right now. Please try again later.`,
	MsgLinkFailed:    `Sorry, I couldn't create a sign-in link right now. Please try again later.`,
	MsgStillSignedIn: `That sign-in could not be completed. You are still logged in as {{ .Name }}. {{ template "menuText" . }}`,
}

const menuTemplate = `{{ define "menuText" -}}
{{- range .Actions }}To {{ .Description }}, type '{{ .Name }}'. {{ end -}}
To quit, type 'quit'. To log out, type 'logout'.
{{- end }}`

// MessageData is the template input. Unused fields are ignored.
type MessageData struct {
	Name      string
	Link      string
	Code      string
	ValidFor  string
	Remaining int
	Action    string
	Actions   []ActionInfo
}

// ActionInfo describes a registered action for the menu.
type ActionInfo struct {
	Name        string
	Description string
}

// Messages renders user-facing text from templates.
type Messages struct {
	templates *template.Template
	actions   []ActionInfo
}

// NewMessages parses the default templates with overrides applied.
func NewMessages(overrides map[string]string) (*Messages, error) {
	root := template.New("messages").Funcs(sprig.TxtFuncMap())
	if _, err := root.Parse(menuTemplate); err != nil {
		return nil, fmt.Errorf("parse menu template: %w", err)
	}

	for name, text := range defaultTemplates {
		if override, ok := overrides[name]; ok && override != "" {
			text = override
		}
		if _, err := root.New(name).Parse(text); err != nil {
			return nil, fmt.Errorf("parse message template %q: %w", name, err)
		}
	}
	for name := range overrides {
		if _, known := defaultTemplates[name]; !known {
			return nil, fmt.Errorf("unknown message template %q", name)
		}
	}
	return &Messages{templates: root}, nil
}

// Render executes the named template. Rendering failures fall back to the
// template name so the conversation never stalls on a bad override.
func (m *Messages) Render(name string, data MessageData) string {
	if data.Actions == nil {
		data.Actions = m.actions
	}
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logging.Error("Dialog", err, "Failed to render message %s", name)
		return name
	}
	return buf.String()
}

// CodePrompt renders the message the callback pushes into the conversation.
func (m *Messages) CodePrompt(displayName, code string, validFor time.Duration) string {
	data := MessageData{Name: displayName, Code: code}
	if validFor > 0 {
		data.ValidFor = humanizeMinutes(validFor)
	}
	return m.Render(MsgCodePrompt, data)
}

func (m *Messages) setActions(actions []ActionInfo) {
	m.actions = actions
}

func humanizeMinutes(d time.Duration) string {
	minutes := int(math.Ceil(d.Minutes()))
	if minutes <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
