package controllers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/cabinet-cloud/cabinet/internal/domain"
	"github.com/cabinet-cloud/cabinet/internal/middlewares"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// FilesController exposes the file tree over HTTP. It is thin glue:
// every decision lives in the file manager, the controller only binds
// requests, resolves the authenticated owner and maps domain errors to
// status codes.
type FilesController struct {
	fileManager domain.FileManager
	validate    *validator.Validate
}

type FilesControllerDependencies struct {
	FileManager domain.FileManager
}

func NewFilesController(deps FilesControllerDependencies) *FilesController {
	return &FilesController{
		fileManager: deps.FileManager,
		validate:    validator.New(),
	}
}

type createDirectoryRequest struct {
	Name       string  `json:"name" validate:"required"`
	ParentUUID *string `json:"parent_uuid" validate:"omitempty,uuid4"`
}

type renameRequest struct {
	NewName string `json:"new_name" validate:"required"`
}

type moveRequest struct {
	TargetParentUUID *string `json:"target_parent_uuid" validate:"omitempty,uuid4"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (fc *FilesController) UploadFile(c fiber.Ctx) error {
	ownerID, err := middlewares.OwnerID(c)
	if err != nil {
		return err
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "invalid_request", Message: "no file provided"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "invalid_request", Message: "failed to read uploaded file"})
	}
	defer file.Close()

	var parentUUID *string
	if v := c.FormValue("parent_uuid"); v != "" {
		parentUUID = &v
	}

	node, err := fc.fileManager.UploadFile(c.RequestCtx(), domain.UploadFileParams{
		OwnerID:    ownerID,
		ParentUUID: parentUUID,
		Name:       fileHeader.Filename,
		MimeType:   fileHeader.Header.Get("Content-Type"),
		SizeBytes:  fileHeader.Size,
		Body:       file,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (fc *FilesController) CreateDirectory(c fiber.Ctx) error {
	ownerID, err := middlewares.OwnerID(c)
	if err != nil {
		return err
	}

	var req createDirectoryRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "invalid_request", Message: "invalid request body"})
	}
	if err := fc.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "invalid_request", Message: err.Error()})
	}

	node, err := fc.fileManager.CreateDirectory(c.RequestCtx(), domain.CreateDirectoryParams{
		OwnerID:    ownerID,
		Name:       req.Name,
		ParentUUID: req.ParentUUID,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (fc *FilesController) ListFiles(c fiber.Ctx) error {
	ownerID, err := middlewares.OwnerID(c)
	if err != nil {
		return err
	}

	var parentUUID *string
	if v := c.Query("parent_uuid"); v != "" {
		parentUUID = &v
	}

	listing, err := fc.fileManager.ListChildren(c.RequestCtx(), domain.ListChildrenQuery{
		OwnerID:    ownerID,
		ParentUUID: parentUUID,
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "limit", 20),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(listing)
}

func (fc *FilesController) GetNode(c fiber.Ctx) error {
	ownerID, err := middlewares.OwnerID(c)
	if err != nil {
		return err
	}

	node, err := fc.fileManager.GetNode(c.RequestCtx(), ownerID, c.Params("uuid"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(node)
}

func (fc *FilesController) GetBreadcrumb(c fiber.Ctx) error {
	ownerID, err := middlewares.OwnerID(c)
	if err != nil {
		return err
	}

	breadcrumb, err := fc.fileManager.GetBreadcrumb(c.RequestCtx(), ownerID, c.Params("uuid"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(breadcrumb)
}

func (fc *FilesController) GetDownloadURL(c fiber.Ctx) error {
	ownerID, err := middlewares.OwnerID(c)
	if err != nil {
		return err
	}

	node, err := fc.fileManager.GetDownloadURL(c.RequestCtx(), ownerID, c.Params("uuid"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(node)
}

func (fc *FilesController) DownloadDirectoryAsZip(c fiber.Ctx) error {
	ownerID, err := middlewares.OwnerID(c)
	if err != nil {
		return err
	}

	directoryArchive, err := fc.fileManager.DownloadDirectoryAsZip(c.RequestCtx(), ownerID, c.Params("uuid"))
	if err != nil {
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", directoryArchive.Filename))

	return c.SendStream(directoryArchive.Content)
}

func (fc *FilesController) Rename(c fiber.Ctx) error {
	ownerID, err := middlewares.OwnerID(c)
	if err != nil {
		return err
	}

	var req renameRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "invalid_request", Message: "invalid request body"})
	}
	if err := fc.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "invalid_request", Message: err.Error()})
	}

	node, err := fc.fileManager.Rename(c.RequestCtx(), ownerID, c.Params("uuid"), req.NewName)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(node)
}

func (fc *FilesController) Move(c fiber.Ctx) error {
	ownerID, err := middlewares.OwnerID(c)
	if err != nil {
		return err
	}

	var req moveRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "invalid_request", Message: "invalid request body"})
	}
	if err := fc.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "invalid_request", Message: err.Error()})
	}

	node, err := fc.fileManager.Move(c.RequestCtx(), ownerID, c.Params("uuid"), req.TargetParentUUID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(node)
}

func (fc *FilesController) Delete(c fiber.Ctx) error {
	ownerID, err := middlewares.OwnerID(c)
	if err != nil {
		return err
	}

	if err := fc.fileManager.Delete(c.RequestCtx(), ownerID, c.Params("uuid")); err != nil {
		return respondError(c, err)
	}

	return c.JSON(messageResponse{Message: "deleted"})
}

func queryInt(c fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

// respondError maps the domain error taxonomy to stable machine codes
// and HTTP statuses. Unrecognized errors are internal and not leaked.
func respondError(c fiber.Ctx, err error) error {
	var invalidName *domain.InvalidNameError
	if errors.As(err, &invalidName) {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "invalid_name", Message: invalidName.Reason})
	}

	type mapping struct {
		status int
		code   string
	}

	for target, m := range map[error]mapping{
		domain.ErrNotFound:            {fiber.StatusNotFound, "not_found"},
		domain.ErrParentNotFound:      {fiber.StatusNotFound, "parent_not_found"},
		domain.ErrForbidden:           {fiber.StatusForbidden, "forbidden"},
		domain.ErrNameConflict:        {fiber.StatusBadRequest, "name_conflict"},
		domain.ErrInvalidMove:         {fiber.StatusBadRequest, "invalid_move"},
		domain.ErrAlreadyInLocation:   {fiber.StatusBadRequest, "already_in_location"},
		domain.ErrStorageWriteFailed:  {fiber.StatusBadRequest, "storage_write_failed"},
		domain.ErrStorageDeleteFailed: {fiber.StatusBadRequest, "storage_delete_failed"},
		domain.ErrNotAFile:            {fiber.StatusBadRequest, "not_a_file"},
		domain.ErrNotADirectory:       {fiber.StatusBadRequest, "not_a_directory"},
		domain.ErrEmptyDirectory:      {fiber.StatusBadRequest, "empty_directory"},
	} {
		if errors.Is(err, target) {
			return c.Status(m.status).JSON(errorResponse{Code: m.code, Message: target.Error()})
		}
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error in files controller")

	return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Code: "internal_error", Message: "internal server error"})
}
