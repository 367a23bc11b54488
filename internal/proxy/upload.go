package proxy

import (
	"bytes"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
	"github.com/dataviz-hub/refine-gateway/internal/auth"
	"github.com/dataviz-hub/refine-gateway/internal/refine"
	"github.com/dataviz-hub/refine-gateway/internal/saved"
)

// upload creates a new live backend project from an uploaded data file.
// The gateway generates the backend project name, resolves the new id
// from the backend's response, and registers it before replying.
func (h *Handler) upload(c *gin.Context) {
	user := auth.CurrentUser(c)

	if c.Request.ContentLength > h.maxUploadBytes {
		apierr.Respond(c, apierr.New(http.StatusRequestEntityTooLarge, "Upload exceeds MAX_UPLOAD_SIZE_MB"))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	file, fileHeader, err := uploadedFile(c)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		apierr.Respond(c, apierr.New(http.StatusRequestEntityTooLarge, "Upload exceeds MAX_UPLOAD_SIZE_MB"))
		return
	}
	if len(data) == 0 {
		apierr.Respond(c, apierr.BadRequest("Uploaded file is empty"))
		return
	}

	projectName := c.PostForm("projectName")
	if projectName == "" {
		projectName = saved.GenerateProjectName(user.ID)
	}

	headers := h.client.BuildProxyHeaders(c.Request)
	if err := h.client.EnsureCSRF(c.Request.Context(), headers, http.MethodPost); err != nil {
		apierr.Respond(c, err)
		return
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("project-file", fileHeader.Filename)
	if err != nil {
		apierr.Respond(c, apierr.Upstream("failed to build upload form"))
		return
	}
	if _, err := part.Write(data); err != nil {
		apierr.Respond(c, apierr.Upstream("failed to build upload form"))
		return
	}
	if err := writer.WriteField("project-name", projectName); err != nil {
		apierr.Respond(c, apierr.Upstream("failed to build upload form"))
		return
	}
	if err := writer.Close(); err != nil {
		apierr.Respond(c, apierr.Upstream("failed to build upload form"))
		return
	}
	headers.Set("Content-Type", writer.FormDataContentType())

	createURL := h.client.BuildURL("/command/core/create-project-from-upload", "")
	if token := headers.Get(refine.CSRFHeader); token != "" {
		createURL += "?csrf_token=" + url.QueryEscape(token)
	}

	resp, err := h.client.Do(c.Request.Context(), http.MethodPost, createURL, headers, &form)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	finalURL := resp.Request.URL.String()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	projectID, idSource, err := resolveProjectID(location, finalURL, resp.StatusCode, body, func() string {
		return h.client.FindProjectIDByName(c.Request.Context(), headers, projectName)
	})
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	if err := h.registry.Register(c.Request.Context(), projectID, user.ID, projectName); err != nil {
		apierr.Respond(c, err)
		return
	}

	// Relay the backend session so follow-up commands ride the same
	// backend session the project was created on.
	for _, setCookie := range resp.Header.Values("Set-Cookie") {
		c.Writer.Header().Add("Set-Cookie", setCookie)
	}

	log.Printf("[info] operation=upload_project user_id=%s project_id=%s id_source=%s size_bytes=%d",
		user.ID, projectID, idSource, len(data))
	c.JSON(http.StatusCreated, gin.H{
		"projectId":   projectID,
		"projectName": projectName,
		"idSource":    idSource,
	})
}

// resolveProjectID walks the id fallback chain and names the step that
// produced the id, so the response's idSource field reflects how the id
// was actually recovered.
func resolveProjectID(location, finalURL string, status int, body []byte, byName func() string) (string, string, error) {
	if id := refine.ProjectIDFromLocation(location); id != "" {
		return id, "redirect", nil
	}
	if id := refine.ProjectIDFromLocation(finalURL); id != "" {
		return id, "finalUrl", nil
	}
	if id := byName(); id != "" {
		return id, "metadata", nil
	}
	id, err := refine.ExtractProjectID(refine.ExtractInputs{
		Status:   status,
		Location: location,
		FinalURL: finalURL,
		Body:     body,
	})
	if err != nil {
		return "", "", err
	}
	return id, "body", nil
}

func uploadedFile(c *gin.Context) (multipart.File, *multipart.FileHeader, error) {
	for _, field := range []string{"project-file", "file"} {
		file, header, err := c.Request.FormFile(field)
		if err == nil {
			return file, header, nil
		}
	}
	return nil, nil, apierr.BadRequest("Missing uploaded file")
}
