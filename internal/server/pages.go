package server

import (
	"html/template"

	"github.com/labstack/echo/v4"
)

// The bot serves only a handful of tiny pages, so they are compiled in
// rather than loaded from disk. Styling lives under /static.
const pageShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>SwissRPG Bot</title>
<link rel="stylesheet" href="/static/style.css">
</head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</main>
</body>
</html>`

var pageTemplate = template.Must(template.New("page").Parse(pageShell))

type page struct {
	Title   string
	Message string
}

var (
	pageError = page{
		Title:   "Something went wrong",
		Message: "Please go back to Discord, write \"link meetup\" to the bot again and retry with a fresh link.",
	}
	pageTokenInvalid = page{
		Title:   "This link is no longer valid",
		Message: "Linking links can only be used once and expire after an hour. Write \"link meetup\" to the bot on Discord to get a new one.",
	}
	pageAlreadyLinked = page{
		Title:   "Account already linked",
		Message: "This Meetup account is already linked to a Discord profile. If that doesn't sound right, contact an organizer.",
	}
)

func (s *Server) renderPage(c echo.Context, status int, p page) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(status)
	return pageTemplate.Execute(c.Response().Writer, p)
}

func (s *Server) renderLinked(c echo.Context, memberName string) error {
	return s.renderPage(c, 200, page{
		Title:   "All set, " + memberName + "!",
		Message: "Your Meetup account is now linked to your Discord profile. You can close this tab and head back to Discord.",
	})
}
