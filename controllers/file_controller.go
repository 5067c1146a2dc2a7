package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/s92475mark/remote-file-access/middleware"
	"github.com/s92475mark/remote-file-access/models"
	"github.com/s92475mark/remote-file-access/services"
	"github.com/s92475mark/remote-file-access/utils"
)

// FileController exposes the file lifecycle engine over HTTP: uploads (whole
// and chunked), status changes, listing, deletion, downloads and share links.
type FileController struct {
	files     *services.FileService
	assembler *services.Assembler
	shares    *services.ShareService
	maxUpload int64
}

func NewFileController(files *services.FileService, assembler *services.Assembler, shares *services.ShareService, maxUploadBytes int64) *FileController {
	return &FileController{
		files:     files,
		assembler: assembler,
		shares:    shares,
		maxUpload: maxUploadBytes,
	}
}

func getUserID(ctx *gin.Context) (uint, bool) {
	return middleware.GetUserID(ctx)
}

// respondServiceError maps engine sentinels onto the JSON envelope. Quota and
// ownership messages carry through; storage failures stay generic.
func respondServiceError(ctx *gin.Context, err error) {
	var se *services.StorageError
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40404, err.Error())
	case errors.Is(err, services.ErrForbidden):
		utils.Error(ctx, http.StatusForbidden, 40301, err.Error())
	case errors.Is(err, services.ErrBadRequest):
		utils.Error(ctx, http.StatusBadRequest, 40001, err.Error())
	case errors.Is(err, services.ErrConflict):
		utils.Error(ctx, http.StatusConflict, 40901, err.Error())
	case errors.As(err, &se):
		utils.Error(ctx, http.StatusInternalServerError, 50001, "storage error")
	default:
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal error")
	}
}

// Upload handles a whole-file multipart upload.
func (f *FileController) Upload(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	// Accept common field name 'file' or fallback to 'f'
	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		file, header, err = ctx.Request.FormFile("f")
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40030, "no file uploaded")
			return
		}
	}
	defer file.Close()

	if f.maxUpload > 0 && header.Size > f.maxUpload {
		utils.Error(ctx, http.StatusBadRequest, 40032, fmt.Sprintf("file size exceeds %d bytes", f.maxUpload))
		return
	}

	rec, err := f.files.Create(ctx.Request.Context(), userID, header.Filename, file)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	utils.Success(ctx, gin.H{
		"id":          rec.ID,
		"filename":    rec.Filename,
		"storage_key": rec.StorageKey,
		"size_bytes":  rec.SizeBytes,
		"message":     "File uploaded successfully",
	})
}

// UploadInit opens a chunked upload session.
func (f *FileController) UploadInit(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	type request struct {
		Filename string `json:"filename" binding:"required"`
		FileSize int64  `json:"file_size"`
		FileType string `json:"file_type"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	uploadID, err := f.assembler.Init(ctx.Request.Context(), userID, req.Filename, req.FileSize, req.FileType)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	utils.Success(ctx, gin.H{
		"upload_id":  uploadID,
		"chunk_size": f.assembler.ChunkSize(),
		"upload_url": "/files/upload_chunk",
	})
}

// UploadChunk stores one chunk slot for an open session.
func (f *FileController) UploadChunk(ctx *gin.Context) {
	uploadID := ctx.PostForm("upload_id")
	if uploadID == "" {
		utils.Error(ctx, http.StatusBadRequest, 40033, "missing upload_id")
		return
	}
	index, err := strconv.Atoi(ctx.PostForm("chunk_index"))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40034, "invalid chunk_index")
		return
	}

	chunk, _, err := ctx.Request.FormFile("chunk")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40035, "missing chunk data")
		return
	}
	defer chunk.Close()

	if err := f.assembler.PutChunk(ctx.Request.Context(), uploadID, index, chunk); err != nil {
		respondServiceError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"upload_id": uploadID, "chunk_index": index})
}

// UploadComplete finalizes a chunked upload into a file record.
func (f *FileController) UploadComplete(ctx *gin.Context) {
	if _, ok := getUserID(ctx); !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	type request struct {
		UploadID    string `json:"upload_id" binding:"required"`
		Filename    string `json:"filename"`
		TotalChunks int    `json:"total_chunks" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	rec, err := f.assembler.Complete(ctx.Request.Context(), req.UploadID, req.Filename, req.TotalChunks)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	utils.Success(ctx, gin.H{
		"id":          rec.ID,
		"filename":    rec.Filename,
		"storage_key": rec.StorageKey,
		"size_bytes":  rec.SizeBytes,
		"message":     "File uploaded successfully",
	})
}

// UpdateStatus toggles the permanent flag; promotion re-checks the permanent
// quota, demotion always succeeds for the owner.
func (f *FileController) UpdateStatus(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}
	storageKey := ctx.Param("storage_key")

	type request struct {
		IsPermanent *bool `json:"is_permanent" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	var err error
	var rec *models.File
	if *req.IsPermanent {
		rec, err = f.files.Promote(ctx.Request.Context(), userID, storageKey)
	} else {
		rec, err = f.files.Demote(ctx.Request.Context(), userID, storageKey)
	}
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	utils.Success(ctx, rec)
}

// List returns the owner's files with stats and effective limits.
func (f *FileController) List(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	result, err := f.files.List(
		ctx.Request.Context(),
		userID,
		ctx.Query("filename"),
		ctx.DefaultQuery("sort_by", "upload_time"),
		ctx.DefaultQuery("order", "desc"),
	)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	utils.Success(ctx, result)
}

// Delete removes a file row and its bytes, freeing quota immediately.
func (f *FileController) Delete(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	if err := f.files.Delete(ctx.Request.Context(), userID, ctx.Param("storage_key")); err != nil {
		respondServiceError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "File deleted successfully"})
}

// Download streams a file to its owner under the original filename.
func (f *FileController) Download(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	rec, rc, err := f.files.Open(ctx.Request.Context(), userID, ctx.Param("storage_key"))
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	defer rc.Close()

	ctx.DataFromReader(http.StatusOK, rec.SizeBytes, "application/octet-stream", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", rec.Filename),
	})
}

// DownloadToken mints a short-lived token pinned to one storage key.
func (f *FileController) DownloadToken(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}
	storageKey := ctx.Param("storage_key")

	// Confirm ownership before minting anything.
	rec, rc, err := f.files.Open(ctx.Request.Context(), userID, storageKey)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	rc.Close()

	token, err := utils.GenerateDownloadToken(userID, rec.StorageKey)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}
	utils.Success(ctx, gin.H{
		"token":      token,
		"expires_in": int(utils.DownloadTokenTTL.Seconds()),
	})
}

// DownloadWithToken redeems a download token without a bearer header. Any
// failed check returns one generic invalid-or-expired message.
func (f *FileController) DownloadWithToken(ctx *gin.Context) {
	token := ctx.Query("token")
	if token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "invalid or expired download token")
		return
	}

	claims, err := utils.ParseDownloadToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "invalid or expired download token")
		return
	}

	storageKey := claims.StorageKey
	if storageKey == "" {
		storageKey = ctx.Query("filename")
	}
	if storageKey == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "invalid or expired download token")
		return
	}

	rec, rc, err := f.files.Open(ctx.Request.Context(), claims.UserID, storageKey)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "invalid or expired download token")
		return
	}
	defer rc.Close()

	ctx.DataFromReader(http.StatusOK, rec.SizeBytes, "application/octet-stream", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", rec.Filename),
	})
}

// CreateShare issues (or re-returns) the file's public share token.
func (f *FileController) CreateShare(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	token, err := f.shares.CreateLink(ctx.Request.Context(), userID, ctx.Param("storage_key"))
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"share_token": token, "share_url": "/files/shared/" + token})
}

// RevokeShare clears the share token; a file with no token is a no-op success.
func (f *FileController) RevokeShare(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	if err := f.shares.RevokeLink(ctx.Request.Context(), userID, ctx.Param("storage_key")); err != nil {
		respondServiceError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "share link revoked"})
}

// SharedDownload is the public, unauthenticated capability-token path.
func (f *FileController) SharedDownload(ctx *gin.Context) {
	rec, rc, err := f.shares.ResolvePublic(ctx.Request.Context(), ctx.Param("share_token"))
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	defer rc.Close()

	ctx.DataFromReader(http.StatusOK, rec.SizeBytes, "application/octet-stream", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", rec.Filename),
	})
}
