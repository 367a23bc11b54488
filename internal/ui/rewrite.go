// Package ui proxies the backend's embedded browser UI under the
// /openrefine prefix, rewriting redirects and mutating HTML documents so
// the UI works behind the gateway without backend changes.
package ui

import (
	"bytes"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// PublicPrefix is the path under which the backend UI is exposed.
const PublicPrefix = "/openrefine"

const (
	baseTagSentinel     = `<base href="` + PublicPrefix + `/">`
	hashGuardSentinel   = `id="gw-hash-guard"`
	historyKeepSentinel = `id="gw-history-keeper"`
)

// hashGuardScript stops the UI's hashchange handler from reloading the
// page when the fragment it reacts to was restored by the gateway.
const hashGuardScript = `<script id="gw-hash-guard">(function(){var applied=false;window.addEventListener("hashchange",function(e){if(!applied&&sessionStorage.getItem("gw-restored-hash")===location.hash){applied=true;e.stopImmediatePropagation();}},true);})();</script>`

// historyKeepScript carries the current fragment across pushState
// navigations that would otherwise drop it.
const historyKeepScript = `<script id="gw-history-keeper">(function(){var push=history.pushState;history.pushState=function(state,title,url){if(typeof url==="string"&&url.indexOf("#")===-1&&location.hash){sessionStorage.setItem("gw-restored-hash",location.hash);url=url+location.hash;}return push.call(this,state,title,url);};})();</script>`

var (
	headOpenPattern = regexp.MustCompile(`(?i)<head[^>]*>`)
	baseTagPattern  = regexp.MustCompile(`(?i)<base\s`)
	homeLinkPattern = regexp.MustCompile(`(?i)(href|action)="/"`)
	docMarkPattern  = regexp.MustCompile(`(?i)^\s*(<!doctype|<html)`)
)

// RewriteLocation maps a backend redirect target onto the public prefix.
// Absolute URLs pointing elsewhere pass through untouched; already
// prefixed paths are left alone so the rewrite is idempotent.
func RewriteLocation(location, backendBase string) string {
	if location == "" {
		return ""
	}

	target, err := url.Parse(location)
	if err != nil {
		return location
	}

	if target.IsAbs() {
		base, err := url.Parse(backendBase)
		if err != nil || target.Host != base.Host {
			return location
		}
		target.Scheme = ""
		target.Host = ""
	}

	if !strings.HasPrefix(target.Path, "/") {
		return location
	}
	if target.Path == PublicPrefix || strings.HasPrefix(target.Path, PublicPrefix+"/") {
		return target.String()
	}

	target.Path = PublicPrefix + target.Path
	return target.String()
}

// IsDocumentResponse reports whether a backend response body should get
// the full document rewrite. XHR-fetched HTML fragments pass through
// untouched.
func IsDocumentResponse(r *http.Request, contentType string, body []byte) bool {
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return false
	}
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return false
	}
	return docMarkPattern.Match(body)
}

// RewriteDocument mutates a backend HTML document for prefixed serving:
// a <base> tag, rewritten root-relative links, and the fragment-keeping
// scripts. Every mutation is sentinel-guarded, so rewriting an already
// rewritten document is a no-op.
func RewriteDocument(body []byte) []byte {
	out := body

	if !baseTagPattern.Match(out) {
		if loc := headOpenPattern.FindIndex(out); loc != nil {
			var b bytes.Buffer
			b.Write(out[:loc[1]])
			b.WriteString(baseTagSentinel)
			b.Write(out[loc[1]:])
			out = b.Bytes()
		}
	}

	out = homeLinkPattern.ReplaceAll(out, []byte(`$1="`+PublicPrefix+`/"`))

	var scripts []string
	if !bytes.Contains(out, []byte(hashGuardSentinel)) {
		scripts = append(scripts, hashGuardScript)
	}
	if !bytes.Contains(out, []byte(historyKeepSentinel)) {
		scripts = append(scripts, historyKeepScript)
	}
	if len(scripts) > 0 {
		injection := []byte(strings.Join(scripts, ""))
		if idx := bytes.Index(bytes.ToLower(out), []byte("</head>")); idx >= 0 {
			out = append(out[:idx:idx], append(injection, out[idx:]...)...)
		} else {
			out = append(out, injection...)
		}
	}

	return out
}
