package httpx

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/guardgate/portal/internal/service"
)

//go:embed templates/portal/*.gohtml
var portalTemplatesFS embed.FS

var portalTemplates = template.Must(
	template.ParseFS(portalTemplatesFS, "templates/portal/*.gohtml"))

// loginData feeds the login form template.
type loginData struct {
	WorkflowName  string
	Action        string
	Error         string
	Captcha       string
	LoginField    string
	PasswordField string
	CaptchaField  string
}

// otpData feeds the second-factor prompt template.
type otpData struct {
	WorkflowName string
	Action       string
	Error        string
	Challenge    string
	OTPField     string
	ResendField  string
}

// learningField is one extra credential prompted by learning mode.
type learningField struct {
	Name  string
	Label string
	Type  string
}

// learningData feeds the extra-credentials form template.
type learningData struct {
	WorkflowName string
	Action       string
	Error        string
	Fields       []learningField
}

type messageData struct {
	WorkflowName string
	Message      string
}

func renderTemplate(w http.ResponseWriter, logger *slog.Logger, params renderParams) {
	var buf bytes.Buffer
	if err := portalTemplates.ExecuteTemplate(&buf, params.name, params.data); err != nil {
		logger.Error("render template", "template", params.name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(params.status)
	_, _ = buf.WriteTo(w)
}

type renderParams struct {
	name   string
	status int
	data   any
}

// LearningField describes one extra credential collected in learning
// mode, when the protected application needs more than login/password.
type LearningField struct {
	Name  string
	Label string
	Type  string
}

// RenderLearningForm emits the extra-credentials prompt for learning
// mode. The enforcement layer calls it when the application profile
// lists fields the portal has not captured yet.
func RenderLearningForm(w http.ResponseWriter, logger *slog.Logger, workflowName, action string, fields []LearningField) {
	data := learningData{WorkflowName: workflowName, Action: action}
	for _, f := range fields {
		typ := f.Type
		if typ == "" {
			typ = "text"
		}
		data.Fields = append(data.Fields, learningField{Name: f.Name, Label: f.Label, Type: typ})
	}
	renderTemplate(w, logger, renderParams{name: "learning", status: http.StatusOK, data: data})
}

func newLoginData(name, action, errMsg, captcha string) loginData {
	return loginData{
		WorkflowName:  name,
		Action:        action,
		Error:         errMsg,
		Captcha:       captcha,
		LoginField:    service.FieldLogin,
		PasswordField: service.FieldPassword,
		CaptchaField:  service.FieldCaptcha,
	}
}

func newOTPData(name, action, errMsg, challenge string) otpData {
	return otpData{
		WorkflowName: name,
		Action:       action,
		Error:        errMsg,
		Challenge:    challenge,
		OTPField:     service.FieldOTPKey,
		ResendField:  service.FieldOTPResend,
	}
}
