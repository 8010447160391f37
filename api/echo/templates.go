package echo

import (
	"bytes"
	"html/template"
)

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Salesforce for Framer</title>
<style>
body { margin: 0; min-height: 100vh; display: flex; align-items: center; justify-content: center; font-family: Inter, system-ui, sans-serif; background: #111; color: #eee; }
p { max-width: 320px; text-align: center; line-height: 1.5; }
</style>
</head>
<body>
<p>{{.}}</p>
</body>
</html>
`))

func renderConfirmation(message string) (string, error) {
	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, message); err != nil {
		return "", err
	}

	return buf.String(), nil
}
