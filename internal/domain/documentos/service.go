package documentos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cesfam/portal/internal/platform/auth"
	"github.com/cesfam/portal/internal/platform/blobstore"
	"github.com/cesfam/portal/internal/platform/events"
	"github.com/cesfam/portal/internal/platform/validate"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrNoArchivo  = errors.New("document has no file")
)

type Service struct {
	docs      DocumentoRepository
	store     blobstore.Store
	pacientes PacienteResolver
	medicos   MedicoResolver
	publisher events.Publisher
	logger    zerolog.Logger
	baseURL   string
}

func NewService(docs DocumentoRepository, store blobstore.Store, pacientes PacienteResolver, medicos MedicoResolver, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		docs:      docs,
		store:     store,
		pacientes: pacientes,
		medicos:   medicos,
		publisher: pub,
		logger:    logger,
		baseURL:   "/api/documentos",
	}
}

func (s *Service) withURL(d *Documento) *Documento {
	if d.HasArchivo() {
		d.ArchivoURL = s.baseURL + "/" + d.ID.String() + "/archivo"
	}
	return d
}

// Create issues a document. Doctors sign as themselves; admins may name the
// doctor. The patient comes from the request or from the appointment, and
// both must agree when given. An attached file is stored first and removed
// again if the metadata cannot be saved.
func (s *Service) Create(ctx context.Context, caller auth.Principal, req *CreateDocumentoRequest, file *Upload) (*Documento, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	d := &Documento{ID: uuid.New(), Tipo: req.Tipo, Titulo: req.Titulo, Contenido: req.Contenido}

	switch {
	case caller.IsAdmin():
		if req.MedicoID != "" {
			id := uuid.MustParse(req.MedicoID)
			d.MedicoID = &id
		}
	case caller.Has(auth.RoleMedico):
		id, err := s.medicos.MedicoID(ctx, caller)
		if errors.Is(err, auth.ErrNoProfile) {
			return nil, fmt.Errorf("%w: caller has no doctor profile", ErrForbidden)
		}
		if err != nil {
			return nil, err
		}
		d.MedicoID = &id
	default:
		return nil, fmt.Errorf("%w: only doctors issue documents", ErrForbidden)
	}

	if err := s.resolvePatient(ctx, req, d); err != nil {
		return nil, err
	}
	if d.Titulo == "" && d.Contenido == "" && file == nil {
		return nil, fmt.Errorf("%w: a document needs a title, content or a file", ErrValidation)
	}

	if file != nil {
		if err := s.attach(ctx, d, file); err != nil {
			return nil, err
		}
	}
	if err := s.docs.Create(ctx, d); err != nil {
		if d.HasArchivo() {
			if derr := s.store.Delete(context.WithoutCancel(ctx), d.ArchivoKey); derr != nil {
				s.logger.Warn().Err(derr).Str("key", d.ArchivoKey).Msg("orphaned document file")
			}
		}
		return nil, err
	}
	s.withURL(d)
	events.Emit(ctx, s.publisher, s.logger, events.New(events.DocumentoEmitido, caller.UserID, d))
	return d, nil
}

func (s *Service) resolvePatient(ctx context.Context, req *CreateDocumentoRequest, d *Documento) error {
	if req.PacienteID != "" {
		d.PacienteID = uuid.MustParse(req.PacienteID)
	}
	if req.CitaID == "" {
		if d.PacienteID == uuid.Nil {
			return fmt.Errorf("%w: paciente or cita is required", ErrValidation)
		}
		return nil
	}
	citaID := uuid.MustParse(req.CitaID)
	parties, err := s.docs.CitaParties(ctx, citaID)
	if err != nil {
		return err
	}
	if d.PacienteID != uuid.Nil && d.PacienteID != parties.PacienteID {
		return fmt.Errorf("%w: paciente does not match the appointment", ErrValidation)
	}
	if d.MedicoID != nil && *d.MedicoID != parties.MedicoID {
		return fmt.Errorf("%w: appointment belongs to another doctor", ErrForbidden)
	}
	d.PacienteID = parties.PacienteID
	d.CitaID = &citaID
	return nil
}

func (s *Service) attach(ctx context.Context, d *Documento, file *Upload) error {
	ct := contentType(file)
	name := cleanName(file.Name)
	key := "documentos/" + d.PacienteID.String() + "/" + d.ID.String() + "/" + name
	if err := blobstore.CheckUpload(key, file.Size, ct); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	obj, err := s.store.Put(ctx, key, file.Body, file.Size, ct)
	if err != nil {
		if errors.Is(err, blobstore.ErrFileTooLarge) || errors.Is(err, blobstore.ErrInvalidContentType) {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return fmt.Errorf("store file: %w", err)
	}
	d.ArchivoKey = obj.Key
	d.ArchivoNombre = name
	d.ArchivoTipo = obj.ContentType
	d.ArchivoSize = obj.Size
	return nil
}

// contentType trusts the declared type unless it is missing or generic, in
// which case the extension decides.
func contentType(f *Upload) string {
	ct := f.ContentType
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if ct == "" || ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(f.Name))); byExt != "" {
			ct, _, _ = mime.ParseMediaType(byExt)
		}
	}
	return ct
}

func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, name)
	if clean == "" || clean == "." || clean == ".." {
		return "archivo"
	}
	return clean
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Documento, error) {
	d, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, d); err != nil {
		return nil, err
	}
	return s.withURL(d), nil
}

// authorize admits admins, the issuing doctor and the patient.
func (s *Service) authorize(ctx context.Context, caller auth.Principal, d *Documento) error {
	if caller.IsAdmin() {
		return nil
	}
	if caller.Has(auth.RoleMedico) && d.MedicoID != nil {
		if id, err := s.medicos.MedicoID(ctx, caller); err == nil && id == *d.MedicoID {
			return nil
		}
	}
	if caller.Has(auth.RolePaciente) {
		if id, err := s.pacientes.PacienteID(ctx, caller); err == nil && id == d.PacienteID {
			return nil
		}
	}
	return ErrForbidden
}

// Archivo opens the document's file. The caller closes the reader.
func (s *Service) Archivo(ctx context.Context, caller auth.Principal, id uuid.UUID) (io.ReadCloser, *Documento, error) {
	d, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, nil, err
	}
	if !d.HasArchivo() {
		return nil, nil, fmt.Errorf("documento %s: %w", id, ErrNoArchivo)
	}
	r, _, err := s.store.Get(ctx, d.ArchivoKey)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, fmt.Errorf("file %w", ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	return r, d, nil
}

// List scopes the filter: patients see their own documents, doctors the ones
// they issued, admins everything.
func (s *Service) List(ctx context.Context, caller auth.Principal, f Filter, limit, offset int) ([]*Documento, int, error) {
	switch {
	case caller.IsAdmin():
	case caller.Has(auth.RoleMedico):
		id, err := s.medicos.MedicoID(ctx, caller)
		if err != nil {
			return nil, 0, scopeErr(err)
		}
		f.MedicoID = &id
	case caller.Has(auth.RolePaciente):
		id, err := s.pacientes.PacienteID(ctx, caller)
		if err != nil {
			return nil, 0, scopeErr(err)
		}
		f.PacienteID = &id
	default:
		return nil, 0, nil
	}
	items, total, err := s.docs.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, d := range items {
		s.withURL(d)
	}
	return items, total, nil
}

func scopeErr(err error) error {
	if errors.Is(err, auth.ErrNoProfile) {
		return nil
	}
	return err
}

// Delete removes a document and its file. Admin only.
func (s *Service) Delete(ctx context.Context, caller auth.Principal, id uuid.UUID) error {
	if !caller.IsAdmin() {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	d, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	if d.HasArchivo() {
		if err := s.store.Delete(ctx, d.ArchivoKey); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn().Err(err).Str("key", d.ArchivoKey).Msg("document file not removed")
		}
	}
	return nil
}
