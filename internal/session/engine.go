package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"inspection-bot/internal/catalog"
	"inspection-bot/internal/company"
	"inspection-bot/internal/domain"
	"inspection-bot/internal/external"
	"inspection-bot/internal/ledger"
	"inspection-bot/internal/logging"
)

const (
	// BlockSeparator joins a sub-unit label and a defect in a block entry's
	// description. Finalize splits on its first occurrence.
	BlockSeparator = " - "

	archiveLimit  = 10
	targetsPerRow = 3
	buttonsPerRow = 4
)

// Syncer is the external sync façade.
type Syncer interface {
	AppendRow(ctx context.Context, unitLabel, defectText, companyName, photoLink string) error
	UploadPhoto(ctx context.Context, folderPath string, data []byte, nameHint string) (domain.FileHandle, error)
	DeletePhoto(ctx context.Context, h domain.FileHandle) error
}

type CompanyResolver interface {
	Resolve(ctx context.Context, text string) company.Result
}

type Extractor interface {
	Extract(ctx context.Context, text string) (domain.Extraction, error)
}

type ArchiveReader interface {
	ReadAllRows(ctx context.Context, sheet string) ([]domain.Row, error)
}

// Engine runs inspection conversations: one turn per incoming event.
type Engine struct {
	catalog   *catalog.Catalog
	resolver  CompanyResolver
	sync      Syncer
	extractor Extractor
	archive   ArchiveReader
	sheet     string
	store     *Store
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtractor enables free-text parsing for target lookup and quick reports.
func WithExtractor(x Extractor) Option {
	return func(e *Engine) {
		e.extractor = x
	}
}

// WithArchive enables /archive over the given sheet.
func WithArchive(r ArchiveReader, sheet string) Option {
	return func(e *Engine) {
		e.archive = r
		e.sheet = strings.TrimSpace(sheet)
	}
}

// WithStore replaces the in-memory session store.
func WithStore(s *Store) Option {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

// NewEngine returns an engine over the catalog, resolver and syncer.
func NewEngine(c *catalog.Catalog, r CompanyResolver, s Syncer, opts ...Option) (*Engine, error) {
	if c == nil {
		return nil, errors.New("session: catalog must not be nil")
	}
	if r == nil {
		return nil, errors.New("session: company resolver must not be nil")
	}
	if s == nil {
		return nil, errors.New("session: syncer must not be nil")
	}
	e := &Engine{
		catalog:  c,
		resolver: r,
		sync:     s,
		store:    NewStore(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Handle processes one event for a conversation and returns the replies to
// send. Turns of the same conversation are serialized; every path produces
// at least one reply.
func (e *Engine) Handle(ctx context.Context, chatID int64, ev Event) (replies []domain.Reply) {
	ctx = logging.WithChat(ctx, chatID)
	log := logging.FromContext(ctx)

	sl := e.store.slot(chatID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Error("turn panicked", "panic", r, "stack", string(debug.Stack()))
			replies = []domain.Reply{{Text: msgInternal}}
		}
	}()

	s := &sl.session
	if ev == nil {
		return []domain.Reply{{Text: msgHelp}}
	}
	replies, err := e.dispatch(ctx, s, ev)
	if err != nil {
		replies = append(replies, errorReply(ctx, err))
	}
	if len(replies) == 0 {
		replies = []domain.Reply{{Text: msgHelp}}
	}
	log.Debug("turn handled", "event", ev.kind(), "state", s.state.String())
	return replies
}

// Snapshot returns the conversation's state and entry count.
func (e *Engine) Snapshot(chatID int64) (State, int) {
	var (
		st State
		n  int
	)
	e.store.View(chatID, func(s *Session) {
		st = s.state
		if s.entries != nil {
			n = s.entries.Count()
		}
	})
	return st, n
}

func (e *Engine) dispatch(ctx context.Context, s *Session, ev Event) ([]domain.Reply, error) {
	switch ev := ev.(type) {
	case Text:
		return e.onText(ctx, s, ev.Body)
	case Photo:
		return e.onPhoto(ctx, s, ev)
	case ButtonPress:
		return e.onButton(ctx, s, ev.Token)
	default:
		return nil, newError(ErrorInternal, msgInternal, fmt.Errorf("unsupported event %T", ev))
	}
}

func (e *Engine) onButton(ctx context.Context, s *Session, token string) ([]domain.Reply, error) {
	token = strings.TrimSpace(token)
	switch {
	case token == TokenStart:
		return e.start(s)
	case token == TokenFinish:
		return e.finalize(ctx, s)
	case token == TokenUndoLast:
		return e.undoLast(ctx, s)
	case token == TokenStatus:
		return e.status(s), nil
	case strings.HasPrefix(token, tokenTarget):
		return e.pickTarget(s, strings.TrimPrefix(token, tokenTarget))
	case strings.HasPrefix(token, tokenSubUnit):
		return e.selectSubUnit(s, strings.TrimPrefix(token, tokenSubUnit))
	case strings.HasPrefix(token, tokenUndo):
		return e.undo(ctx, s, strings.TrimPrefix(token, tokenUndo))
	}
	return nil, newError(ErrorUserInput, msgUnknownButton, nil)
}

func (e *Engine) onText(ctx context.Context, s *Session, text string) ([]domain.Reply, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		return nil, newError(ErrorUserInput, msgEmptyText, nil)
	}
	if cmd, arg, ok := parseCommand(body); ok {
		switch cmd {
		case "start":
			return e.start(s)
		case "finish":
			return e.finalize(ctx, s)
		case "undo":
			return e.undoLast(ctx, s)
		case "status":
			return e.status(s), nil
		case "reset":
			s.reset()
			return []domain.Reply{{Text: msgReset, CloseKeyboard: true}}, nil
		case "archive":
			return e.archiveRows(ctx, arg)
		case "help":
			return []domain.Reply{{Text: msgHelp}}, nil
		default:
			return nil, newError(ErrorUserInput, msgUnknownCommand, nil)
		}
	}

	switch s.state {
	case StateSelectingTarget:
		return e.lookupTarget(ctx, s, body)
	case StateAwaitingCompany:
		return e.chooseCompany(ctx, s, body)
	case StateActive:
		return e.addText(s, body)
	default:
		return e.quickReport(ctx, body)
	}
}

// parseCommand recognises "/cmd@bot arg" and the plain-text start/finish
// phrases.
func parseCommand(body string) (cmd, arg string, ok bool) {
	switch strings.ToLower(strings.Join(strings.Fields(body), " ")) {
	case "start inspection":
		return "start", "", true
	case "finish inspection":
		return "finish", "", true
	}
	if !strings.HasPrefix(body, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(body[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func (e *Engine) start(s *Session) ([]domain.Reply, error) {
	if s.Active() {
		return nil, newError(ErrorState, fmt.Sprintf(msgAlreadyActive, s.target.Label), nil)
	}
	s.beginSelection()
	return []domain.Reply{{Text: msgPickTarget, Keyboard: e.targetKeyboard()}}, nil
}

func (e *Engine) pickTarget(s *Session, label string) ([]domain.Reply, error) {
	if s.state != StateSelectingTarget {
		return nil, newError(ErrorState, msgNotSelecting, nil)
	}
	t, ok := e.catalog.Get(label)
	if !ok {
		return nil, newError(ErrorUserInput, fmt.Sprintf(msgUnknownTarget, label), nil)
	}
	return e.enterTarget(s, t), nil
}

func (e *Engine) lookupTarget(ctx context.Context, s *Session, text string) ([]domain.Reply, error) {
	if t, ok := e.catalog.Lookup(text); ok {
		return e.enterTarget(s, t), nil
	}
	if e.extractor != nil {
		ext, err := e.extractor.Extract(ctx, text)
		if err != nil {
			logging.FromContext(ctx).Warn("target extraction failed", "err", err)
		} else if domain.Known(ext.UnitLabel) {
			if t, ok := e.catalog.Lookup(ext.UnitLabel); ok {
				return e.enterTarget(s, t), nil
			}
		}
	}
	return nil, newError(ErrorUserInput, fmt.Sprintf(msgUnknownTarget, text), nil)
}

func (e *Engine) enterTarget(s *Session, t catalog.Target) []domain.Reply {
	s.chooseTarget(t, e.catalog.PhotoFolder(t))
	return []domain.Reply{{Text: fmt.Sprintf(msgAskCompany, t.Mode, t.Label), CloseKeyboard: true}}
}

func (e *Engine) chooseCompany(ctx context.Context, s *Session, text string) ([]domain.Reply, error) {
	res := e.resolver.Resolve(ctx, text)
	s.activate(res.Name)
	logging.FromContext(ctx).Info("inspection started",
		"target", s.target.Label, "mode", s.target.Mode.String(),
		"company", res.Name, "method", string(res.Method))

	msg := fmt.Sprintf(msgCompanyMatched, res.Name)
	if !res.Matched {
		msg = fmt.Sprintf(msgCompanyUnmatched, res.Name)
	}
	if s.block != nil {
		msg += "\n" + msgBlockInstructions
	} else {
		msg += "\n" + msgUnitInstructions
	}
	return []domain.Reply{{Text: msg, Keyboard: e.activeKeyboard(s, "")}}, nil
}

func (e *Engine) selectSubUnit(s *Session, label string) ([]domain.Reply, error) {
	if !s.Active() {
		return nil, newError(ErrorState, msgNoActive, nil)
	}
	if s.block == nil {
		return nil, newError(ErrorUserInput, msgNotBlock, nil)
	}
	if !s.target.HasSubUnit(label) {
		return nil, newError(ErrorUserInput, fmt.Sprintf(msgUnknownSubUnit, label, s.target.Label), nil)
	}
	s.block.current = label
	return []domain.Reply{{Text: fmt.Sprintf(msgSubUnitSelected, label), Keyboard: e.activeKeyboard(s, "")}}, nil
}

// describe builds an entry description, prefixing the current sub-unit in
// block mode. It fails when a block session has no sub-unit selected.
func (s *Session) describe(text string) (string, bool) {
	if s.block == nil {
		return text, true
	}
	if s.block.current == "" {
		return "", false
	}
	return s.block.current + BlockSeparator + text, true
}

func (e *Engine) addText(s *Session, body string) ([]domain.Reply, error) {
	desc, ok := s.describe(body)
	if !ok {
		return nil, newError(ErrorUserInput, msgPickSubUnitFirst, nil)
	}
	id := s.entries.AddText(desc)
	return []domain.Reply{{
		Text:     fmt.Sprintf(msgTextAdded, s.entries.Count(), desc),
		Keyboard: e.activeKeyboard(s, id),
	}}, nil
}

func (e *Engine) onPhoto(ctx context.Context, s *Session, p Photo) ([]domain.Reply, error) {
	if !s.Active() {
		return nil, newError(ErrorState, msgNoActive, nil)
	}
	caption := strings.TrimSpace(p.Caption)
	if caption == "" {
		return nil, newError(ErrorUserInput, msgCaptionRequired, nil)
	}
	desc, ok := s.describe(caption)
	if !ok {
		return nil, newError(ErrorUserInput, msgPickSubUnitFirst, nil)
	}
	if p.Fetch == nil {
		return nil, newError(ErrorInternal, msgInternal, errors.New("photo event without fetch"))
	}
	data, err := p.Fetch(ctx)
	if err != nil {
		return nil, newError(ErrorExternalCall, fmt.Sprintf(msgPhotoDownload, err), err)
	}

	h, err := e.sync.UploadPhoto(ctx, s.photoFolder, data, desc+BlockSeparator+s.company)
	if err != nil {
		return nil, newError(ErrorExternalCall, fmt.Sprintf(msgPhotoNotSaved, reasonOf(err)), err)
	}
	id, err := s.entries.AddPhoto(desc, h)
	if err != nil {
		return nil, newError(ErrorInternal, msgInternal, err)
	}
	return []domain.Reply{{
		Text:     fmt.Sprintf(msgPhotoAdded, s.entries.Count(), desc),
		Keyboard: e.activeKeyboard(s, id),
	}}, nil
}

func (e *Engine) undo(ctx context.Context, s *Session, id string) ([]domain.Reply, error) {
	if !s.Active() {
		return nil, newError(ErrorState, msgNoActive, nil)
	}
	return e.removeEntry(ctx, s, id)
}

func (e *Engine) undoLast(ctx context.Context, s *Session) ([]domain.Reply, error) {
	if !s.Active() {
		return nil, newError(ErrorState, msgNoActive, nil)
	}
	last, ok := s.entries.Last()
	if !ok {
		return nil, newError(ErrorState, msgNothingToUndo, nil)
	}
	return e.removeEntry(ctx, s, last.ID)
}

// removeEntry drops the entry from the ledger first. A failed photo delete is
// only reported; the entry stays removed.
func (e *Engine) removeEntry(ctx context.Context, s *Session, id string) ([]domain.Reply, error) {
	entry, err := s.entries.RemoveByID(id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, newError(ErrorState, msgAlreadyRemoved, err)
		}
		return nil, newError(ErrorInternal, msgInternal, err)
	}
	replies := []domain.Reply{{
		Text:     fmt.Sprintf(msgRemoved, entry.Description, s.entries.Count()),
		Keyboard: e.activeKeyboard(s, ""),
	}}
	if entry.Kind == ledger.KindPhoto {
		if err := e.sync.DeletePhoto(ctx, entry.Photo); err != nil {
			logging.FromContext(ctx).Warn("photo left in storage after undo", "file_id", entry.Photo.ID, "err", err)
			replies = append(replies, domain.Reply{Text: fmt.Sprintf(msgOrphanedPhoto, entry.Photo.Name, reasonOf(err))})
		}
	}
	return replies, nil
}

// SplitDescription recovers the (unit, defect) row columns from an entry
// description. Block descriptions are split on the first BlockSeparator;
// anything else is attributed to the target itself.
func SplitDescription(mode domain.Mode, targetLabel, description string) (unit, defect string) {
	if mode == domain.ModeBlock {
		if u, d, ok := strings.Cut(description, BlockSeparator); ok {
			return u, d
		}
	}
	return targetLabel, description
}

func (e *Engine) finalize(ctx context.Context, s *Session) ([]domain.Reply, error) {
	if !s.Active() {
		return nil, newError(ErrorState, msgNothingToFinish, nil)
	}
	log := logging.FromContext(ctx)
	target := s.target.Label
	entries := s.entries.List()

	saved := 0
	var failed []string
	for _, en := range entries {
		unit, defect := SplitDescription(s.target.Mode, target, en.Description)
		if err := e.sync.AppendRow(ctx, unit, defect, s.company, en.Photo.Link); err != nil {
			log.Warn("row not saved", "entry_id", en.ID, "err", err)
			failed = append(failed, en.Description+": "+reasonOf(err))
			continue
		}
		saved++
	}
	s.reset()
	log.Info("inspection finished", "target", target, "saved", saved, "total", len(entries))

	text := fmt.Sprintf(msgSaved, saved, len(entries), target)
	if len(entries) == 0 {
		text += " " + msgNoEntries
	}
	if len(failed) > 0 {
		text += "\n" + msgNotSaved + "\n- " + strings.Join(failed, "\n- ")
	}
	return []domain.Reply{{Text: text, CloseKeyboard: true}}, nil
}

func (e *Engine) status(s *Session) []domain.Reply {
	switch s.state {
	case StateSelectingTarget:
		return []domain.Reply{{Text: msgPickTarget, Keyboard: e.targetKeyboard()}}
	case StateAwaitingCompany:
		return []domain.Reply{{Text: fmt.Sprintf(msgStatusAwaiting, s.target.Label)}}
	case StateActive:
	default:
		return []domain.Reply{{Text: msgStatusIdle}}
	}

	var b strings.Builder
	fmt.Fprintf(&b, msgStatusActive, s.target.Mode, s.target.Label, s.company)
	if s.block != nil {
		b.WriteString("\n")
		if s.block.current != "" {
			fmt.Fprintf(&b, msgStatusSubUnit, s.block.current)
		} else {
			b.WriteString(msgStatusNoSubUnit)
		}
	}
	entries := s.entries.List()
	if len(entries) == 0 {
		b.WriteString("\n" + msgStatusEmpty)
		return []domain.Reply{{Text: b.String(), Keyboard: e.activeKeyboard(s, "")}}
	}

	var undo []domain.Button
	for i, en := range entries {
		fmt.Fprintf(&b, "\n%d. ", i+1)
		if en.Kind == ledger.KindPhoto {
			b.WriteString("[photo] ")
		}
		b.WriteString(en.Description)
		undo = append(undo, domain.Button{Label: fmt.Sprintf(labelUndoN, i+1), Token: UndoToken(en.ID)})
	}
	kb := chunk(undo, buttonsPerRow)
	kb = append(kb, []domain.Button{
		{Label: labelUndoLast, Token: TokenUndoLast},
		{Label: labelFinish, Token: TokenFinish},
	})
	return []domain.Reply{{Text: b.String(), Keyboard: kb}}
}

// Archive returns the saved rows of a unit in sheet order. A block label also
// matches the rows of its sub-units. The returned label is the canonical one
// when the unit is in the catalog.
func (e *Engine) Archive(ctx context.Context, unit string) (string, []domain.Row, error) {
	if e.archive == nil {
		return "", nil, newError(ErrorUserInput, msgArchiveOff, nil)
	}
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return "", nil, newError(ErrorUserInput, msgArchiveUsage, nil)
	}
	rows, err := e.archive.ReadAllRows(ctx, e.sheet)
	if err != nil {
		return "", nil, newError(ErrorExternalCall, fmt.Sprintf(msgArchiveFailed, reasonOf(err)), err)
	}

	label := unit
	want := map[string]bool{labelKey(unit): true}
	if t, ok := e.catalog.Lookup(unit); ok {
		label = t.Label
		want[labelKey(t.Label)] = true
		for _, sub := range t.SubUnits {
			want[labelKey(sub)] = true
		}
	}
	var matched []domain.Row
	for _, r := range rows {
		if want[labelKey(r.UnitLabel)] {
			matched = append(matched, r)
		}
	}
	return label, matched, nil
}

func (e *Engine) archiveRows(ctx context.Context, unit string) ([]domain.Reply, error) {
	label, matched, err := e.Archive(ctx, unit)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return []domain.Reply{{Text: fmt.Sprintf(msgArchiveEmpty, label)}}, nil
	}
	if len(matched) > archiveLimit {
		matched = matched[len(matched)-archiveLimit:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, msgArchiveHeader, label)
	for _, r := range matched {
		b.WriteString("\n" + strings.Join(nonEmpty(r.Date, r.UnitLabel, r.DefectText, r.CompanyName, r.PhotoLink), " | "))
	}
	return []domain.Reply{{Text: b.String()}}, nil
}

// quickReport saves a single free-text report outside any session when the
// extractor can find both a unit and a defect in it.
func (e *Engine) quickReport(ctx context.Context, body string) ([]domain.Reply, error) {
	if e.extractor == nil {
		return []domain.Reply{{Text: msgHelp}}, nil
	}
	ext, err := e.extractor.Extract(ctx, body)
	if err != nil {
		logging.FromContext(ctx).Warn("report extraction failed", "err", err)
		return []domain.Reply{{Text: fmt.Sprintf(msgReportFailed, reasonOf(err)) + "\n\n" + msgHelp}}, nil
	}
	if !domain.Known(ext.UnitLabel) || !domain.Known(ext.DefectText) {
		return []domain.Reply{{Text: msgReportIncomplete + "\n\n" + msgHelp}}, nil
	}

	unit := strings.TrimSpace(ext.UnitLabel)
	if t, ok := e.catalog.Lookup(unit); ok {
		unit = t.Label
	}
	companyName := domain.NoData
	if domain.Known(ext.CompanyName) {
		companyName = e.resolver.Resolve(ctx, ext.CompanyName).Name
	}
	defect := strings.TrimSpace(ext.DefectText)
	if err := e.sync.AppendRow(ctx, unit, defect, companyName, ""); err != nil {
		return nil, newError(ErrorExternalCall, fmt.Sprintf(msgReportNotSaved, reasonOf(err)), err)
	}
	return []domain.Reply{{Text: fmt.Sprintf(msgReportSaved, unit, defect, companyName)}}, nil
}

func (e *Engine) targetKeyboard() [][]domain.Button {
	var buttons []domain.Button
	for _, t := range e.catalog.Targets() {
		buttons = append(buttons, domain.Button{Label: t.Label, Token: TargetToken(t.Label)})
	}
	return chunk(buttons, targetsPerRow)
}

// activeKeyboard lists the block's sub-units (current one marked), an undo
// button for entryID when given, then undo-last and finish.
func (e *Engine) activeKeyboard(s *Session, entryID string) [][]domain.Button {
	var kb [][]domain.Button
	if s.block != nil {
		var subs []domain.Button
		for _, sub := range s.block.subUnits {
			label := sub
			if sub == s.block.current {
				label = markCurrent + sub
			}
			subs = append(subs, domain.Button{Label: label, Token: SubUnitToken(sub)})
		}
		kb = append(kb, chunk(subs, buttonsPerRow)...)
	}
	if entryID != "" {
		kb = append(kb, []domain.Button{{Label: labelUndoEntry, Token: UndoToken(entryID)}})
	}
	return append(kb, []domain.Button{
		{Label: labelUndoLast, Token: TokenUndoLast},
		{Label: labelFinish, Token: TokenFinish},
	})
}

func chunk(buttons []domain.Button, size int) [][]domain.Button {
	var rows [][]domain.Button
	for len(buttons) > 0 {
		n := min(size, len(buttons))
		rows = append(rows, buttons[:n:n])
		buttons = buttons[n:]
	}
	return rows
}

func errorReply(ctx context.Context, err error) domain.Reply {
	log := logging.FromContext(ctx)
	var se *Error
	if errors.As(err, &se) {
		switch se.Code {
		case ErrorExternalCall, ErrorInternal:
			log.Warn("turn failed", "code", string(se.Code), "err", err)
		default:
			log.Debug("turn rejected", "code", string(se.Code), "reason", se.Reason)
		}
		return domain.Reply{Text: se.Reason}
	}
	log.Error("unexpected turn error", "err", err)
	return domain.Reply{Text: msgInternal}
}

func reasonOf(err error) string {
	var f *external.Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return err.Error()
}

func labelKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

func nonEmpty(vals ...string) []string {
	out := vals[:0]
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
