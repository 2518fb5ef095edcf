package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-drop/internal/inbox"
	"github.com/rudransh-shrivastava/peer-drop/internal/logger"
	"github.com/rudransh-shrivastava/peer-drop/internal/peer"
	"github.com/rudransh-shrivastava/peer-drop/internal/protocol"
	"github.com/rudransh-shrivastava/peer-drop/internal/relay"
)

const defaultCommandTimeout = time.Minute

type ShellOptions struct {
	Session   *peer.Session
	Relay     *relay.Client
	Endpoints *relay.Endpoints
	Inbox     *inbox.Store
	Logger    *logrus.Logger
	Out       io.Writer

	DownloadDir string
	// Progress draws a bar while a file is read for sending.
	Progress bool
	// Timeout bounds each command that talks to the network.
	Timeout time.Duration
}

// Shell is the interactive front end over a peer session. Commands and
// session events may print concurrently; output is serialized.
type Shell struct {
	session     *peer.Session
	relay       *relay.Client
	endpoints   *relay.Endpoints
	inbox       *inbox.Store
	logger      *logrus.Logger
	downloadDir string
	progress    bool
	timeout     time.Duration

	mu  sync.Mutex
	out io.Writer

	// Remote id fetched from the relay, used by a bare 'connect'.
	fetched string

	commands []command
}

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, args []string, rest string) error
}

var errQuit = errors.New("quit")

func NewShell(opts ShellOptions) *Shell {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultCommandTimeout
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "."
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	s := &Shell{
		session:     opts.Session,
		relay:       opts.Relay,
		endpoints:   opts.Endpoints,
		inbox:       opts.Inbox,
		logger:      opts.Logger,
		downloadDir: opts.DownloadDir,
		progress:    opts.Progress,
		timeout:     opts.Timeout,
		out:         opts.Out,
	}
	s.commands = []command{
		{"start", "", "Start a session and print the local id", s.cmdStart},
		{"stop", "", "Stop the session and drop all connections", s.cmdStop},
		{"status", "", "Show session state", s.cmdStatus},
		{"share", "[key]", "Publish the local id on the relay under key", s.cmdShare},
		{"fetch", "<key>", "Retrieve a remote id from the relay", s.cmdFetch},
		{"endpoint", "[n|url]", "List relay endpoints or pick one", s.cmdEndpoint},
		{"connect", "[id]", "Connect to a remote id (default: last fetched)", s.cmdConnect},
		{"list", "", "List connections", s.cmdList},
		{"select", "<id|n>", "Pick the connection to send to", s.cmdSelect},
		{"send", "<path>", "Send a file to the selected connection", s.cmdSend},
		{"say", "[text]", "Send a text message to the selected connection", s.cmdSay},
		{"inbox", "", "List received files", s.cmdInbox},
		{"save", "<n> [dir]", "Write a received file to disk", s.cmdSave},
		{"drop", "<n>", "Remove a received file from the inbox", s.cmdDrop},
		{"help", "", "Show this help", s.cmdHelp},
		{"quit", "", "Stop the session and exit", s.cmdQuit},
	}
	return s
}

// Execute runs one command line. It reports false once the user asked to
// quit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	if name == "exit" {
		name = "quit"
	}

	cmd, ok := s.lookup(name)
	if !ok {
		s.printf("Unknown command: %s. Type 'help' for commands.\n", name)
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := cmd.run(ctx, strings.Fields(rest), rest)
	if errors.Is(err, errQuit) {
		return false
	}
	if err != nil {
		s.logger.Debugf("Command %s failed: %v", name, err)
		s.println(describe(err))
	}
	return true
}

// Complete suggests command names for the word under the cursor.
func (s *Shell) Complete(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	suggestions := make([]prompt.Suggest, 0, len(s.commands))
	for _, c := range s.commands {
		suggestions = append(suggestions, prompt.Suggest{Text: c.name, Description: c.summary})
	}
	return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
}

// Run reads commands from the terminal until 'quit' or EOF.
func (s *Shell) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.Watch(ctx)

	s.println("peerdrop interactive shell. Type 'help' for commands.")

	quit := false
	prompt.New(
		func(in string) {
			if !s.Execute(ctx, in) {
				quit = true
			}
		},
		s.Complete,
		prompt.OptionPrefix("peerdrop> "),
		prompt.OptionTitle("peerdrop"),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return quit }),
	).Run()

	s.session.Stop()
}

// Watch prints session events until ctx is done or the session is closed.
func (s *Shell) Watch(ctx context.Context) {
	events := s.session.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.HandleEvent(ctx, e)
		}
	}
}

// HandleEvent reports e to the user. Received files go to the inbox.
func (s *Shell) HandleEvent(ctx context.Context, e peer.Event) {
	switch e.Type {
	case peer.EventStarted:
		s.printf("Session started. Your id: %s\n", e.LocalID)
	case peer.EventStopped:
		s.println("Session stopped.")
	case peer.EventConnectionOpened:
		if e.Inbound {
			s.printf("%s connected to you.\n", e.RemoteID)
		} else {
			s.printf("Connected to %s.\n", e.RemoteID)
		}
	case peer.EventConnectionClosed:
		s.printf("Connection to %s closed.\n", e.RemoteID)
	case peer.EventMessage:
		s.receive(ctx, e.RemoteID, e.Envelope)
	case peer.EventError:
		s.println(describe(e.Err))
	}
}

func (s *Shell) receive(ctx context.Context, remoteID string, env protocol.Envelope) {
	if env.Kind == protocol.KindText {
		s.printf("[%s] %s\n", remoteID, env.Text)
		return
	}

	rf, err := s.inbox.Save(ctx, remoteID, env.File)
	if err != nil {
		s.logger.Errorf("Storing file from %s: %v", remoteID, err)
		s.println(describe(err))
		return
	}
	s.printf("Received %s (%s, %s) from %s as #%d. Use 'save %d' to write it to disk.\n",
		rf.Name, rf.MimeType, humanize.Bytes(uint64(rf.Size)), remoteID, rf.ID, rf.ID)
}

func (s *Shell) cmdStart(ctx context.Context, _ []string, _ string) error {
	id, err := s.session.Start(ctx)
	if err != nil {
		return err
	}
	s.printf("Local id: %s\n", id)
	return nil
}

func (s *Shell) cmdStop(context.Context, []string, string) error {
	s.session.Stop()
	return nil
}

func (s *Shell) cmdStatus(ctx context.Context, _ []string, _ string) error {
	s.printf("Session:  %s\n", s.session.Status())
	if id := s.session.LocalID(); id != "" {
		s.printf("Local id: %s\n", id)
	}
	if sel := s.session.Selected(); sel != "" {
		s.printf("Selected: %s\n", sel)
	}
	s.printf("Relay:    %s\n", s.endpoints.Current())

	n, err := s.inbox.Count(ctx)
	if err != nil {
		return err
	}
	s.printf("Inbox:    %d file(s)\n", n)
	return nil
}

func (s *Shell) cmdShare(ctx context.Context, args []string, _ string) error {
	localID := s.session.LocalID()
	if localID == "" {
		return peer.ErrNotStarted
	}

	var key string
	if len(args) > 0 {
		key = args[0]
	} else {
		key = strings.SplitN(uuid.NewString(), "-", 2)[0]
	}

	if err := s.relay.Publish(ctx, s.endpoints.Current(), key, localID); err != nil {
		return err
	}
	s.printf("Shared your id under key %q on %s\n", key, s.endpoints.Current())
	return nil
}

func (s *Shell) cmdFetch(ctx context.Context, args []string, _ string) error {
	if len(args) != 1 {
		return usage("fetch <key>")
	}

	id, err := s.relay.Retrieve(ctx, s.endpoints.Current(), args[0])
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.fetched = id
	s.mu.Unlock()

	s.printf("Fetched remote id %s. Run 'connect' to dial it.\n", id)
	return nil
}

func (s *Shell) cmdEndpoint(_ context.Context, args []string, _ string) error {
	if len(args) == 0 {
		current := s.endpoints.Current()
		for i, e := range s.endpoints.List() {
			marker := " "
			if e == current {
				marker = "*"
			}
			s.printf("%s %d. %s\n", marker, i+1, e)
		}
		return nil
	}

	e, err := s.endpoints.Select(args[0])
	if err != nil {
		return fmt.Errorf("%w: %w", peer.ErrValidation, err)
	}
	s.printf("Relay endpoint set to %s\n", e)
	return nil
}

func (s *Shell) cmdConnect(ctx context.Context, args []string, _ string) error {
	var remoteID string
	if len(args) > 0 {
		remoteID = args[0]
	} else {
		s.mu.Lock()
		remoteID = s.fetched
		s.mu.Unlock()
	}

	if err := s.session.ConnectTo(ctx, remoteID); err != nil {
		return err
	}
	s.printf("Connection to %s is open.\n", remoteID)
	return nil
}

func (s *Shell) cmdList(context.Context, []string, string) error {
	conns := s.session.Connections()
	if len(conns) == 0 {
		s.println("No connections.")
		return nil
	}

	selected := s.session.Selected()
	for i, id := range conns {
		status, _ := s.session.Lookup(id)
		marker := " "
		if id == selected {
			marker = "*"
		}
		s.printf("%s %d. %s (%s)\n", marker, i+1, id, status)
	}
	return nil
}

func (s *Shell) cmdSelect(_ context.Context, args []string, _ string) error {
	if len(args) != 1 {
		return usage("select <id|n>")
	}

	target := args[0]
	if _, known := s.session.Lookup(target); !known {
		if n, err := strconv.Atoi(target); err == nil {
			conns := s.session.Connections()
			if n >= 1 && n <= len(conns) {
				target = conns[n-1]
			}
		}
	}

	if err := s.session.Select(target); err != nil {
		return err
	}
	s.printf("Selected %s\n", target)
	return nil
}

func (s *Shell) cmdSend(_ context.Context, _ []string, rest string) error {
	if rest == "" {
		return protocol.ErrEmptyFileSelection
	}

	fh, f, err := protocol.OpenFile(rest)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if s.progress {
		bar := progressbar.NewOptions64(fh.Size,
			progressbar.OptionSetWriter(s.lockedOut()),
			progressbar.OptionSetDescription("reading "+fh.Name),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		reader := progressbar.NewReader(fh.Content, bar)
		fh.Content = &reader
		defer func() { _ = bar.Close() }()
	}

	if err := s.session.SendFile(fh); err != nil {
		return err
	}
	s.printf("Sent %s (%s) to %s\n", fh.Name, humanize.Bytes(uint64(fh.Size)), s.session.Selected())
	return nil
}

// cmdSay sends the rest of the line verbatim. A bare say sends an empty
// message.
func (s *Shell) cmdSay(_ context.Context, _ []string, rest string) error {
	return s.session.SendText(rest)
}

func (s *Shell) cmdInbox(ctx context.Context, _ []string, _ string) error {
	files, err := s.inbox.List(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		s.println("Inbox is empty.")
		return nil
	}
	for _, f := range files {
		s.printf("#%d %s (%s, %s) from %s, %s\n",
			f.ID, f.Name, f.MimeType, humanize.Bytes(uint64(f.Size)), f.RemoteID,
			humanize.Time(time.Unix(f.ReceivedAt, 0)))
	}
	return nil
}

func (s *Shell) cmdSave(ctx context.Context, args []string, _ string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("save <n> [dir]")
	}

	id, err := parseFileID(args[0])
	if err != nil {
		return usage("save <n> [dir]")
	}
	dir := s.downloadDir
	if len(args) == 2 {
		dir = args[1]
	}

	path, err := s.inbox.Export(ctx, id, dir)
	if err != nil {
		return err
	}
	s.printf("Saved to %s\n", path)
	return nil
}

func (s *Shell) cmdDrop(ctx context.Context, args []string, _ string) error {
	if len(args) != 1 {
		return usage("drop <n>")
	}
	id, err := parseFileID(args[0])
	if err != nil {
		return usage("drop <n>")
	}

	if err := s.inbox.Delete(ctx, id); err != nil {
		return err
	}
	s.printf("Removed #%d from the inbox.\n", id)
	return nil
}

// parseFileID accepts "3" or "#3".
func parseFileID(v string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(v, "#"), 10, 0)
	return uint(id), err
}

func (s *Shell) cmdHelp(context.Context, []string, string) error {
	cmds := append([]command(nil), s.commands...)
	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].name < cmds[j].name })

	s.println("Available commands:")
	for _, c := range cmds {
		s.printf("  %-22s %s\n", strings.TrimSpace(c.name+" "+c.args), c.summary)
	}
	return nil
}

func (s *Shell) cmdQuit(context.Context, []string, string) error {
	s.session.Stop()
	s.println("Bye.")
	return errQuit
}

func (s *Shell) lookup(name string) (command, bool) {
	for _, c := range s.commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(u string) error {
	return fmt.Errorf("%w: usage: %s", peer.ErrValidation, u)
}

func (s *Shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) println(line string) {
	s.printf("%s\n", line)
}

func (s *Shell) lockedOut() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.out.Write(p)
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
