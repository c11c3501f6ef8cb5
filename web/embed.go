package web

import "embed"

// TemplatesFS embeds the HTML templates for the dashboard and the report.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds static assets.
//
//go:embed static/*
var StaticFS embed.FS
