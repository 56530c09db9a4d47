package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/floostack/transcoder/ffmpeg"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var (
	log = logger.Get("FFmpeg")

	ErrEncode = errors.New("encode failed")

	ffmpegMessageMatcher = regexp.MustCompile(`(?s)message: ({.*})`)
)

type (
	Progress struct {
		FramesProcessed string
		CurrentTime     string
		CurrentBitrate  string
		Progress        float64
		Speed           string
	}

	// Args are the output arguments passed to ffmpeg, keyed by flag (e.g. "-filter_complex").
	Args map[string]any

	// Diagnostic captures what is known about a failed ffmpeg invocation.
	Diagnostic struct {
		CommandLine string `json:"commandLine"`
		ExitStatus  int    `json:"exitStatus"`
		Message     string `json:"message"`
	}

	EncodeError struct {
		Diagnostic
	}

	// EncodeCommand is a single ffmpeg invocation, taking one input
	// and producing one output.
	EncodeCommand struct {
		inputPath      string
		outputPath     string
		config         *Config
		runningCommand *exec.Cmd
	}
)

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%s: %s (exit status %d) [%s]", ErrEncode, e.Message, e.ExitStatus, e.CommandLine)
}

func (e *EncodeError) Unwrap() error { return ErrEncode }

func NewEncodeCommand(input string, output string, config *Config) *EncodeCommand {
	return &EncodeCommand{input, output, config, nil}
}

// Run executes the ffmpeg command, blocking until it exits. Each progress
// update from ffmpeg is delivered to the updateHandler (which may be nil).
// A non-zero exit is returned as an *EncodeError.
func (cmd *EncodeCommand) Run(ctx context.Context, args Args, updateHandler func(*Progress)) error {
	overwrite := true
	options := &ffmpeg.Options{
		Overwrite: &overwrite,
		ExtraArgs: map[string]interface{}(args),
	}

	transcoder := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   cmd.config.ffmpegBinary(),
			FfprobeBinPath:  cmd.config.ffprobeBinary(),
		}).
		Input(cmd.inputPath).
		Output(cmd.outputPath).
		WithContext(&ctx)

	if err := os.MkdirAll(filepath.Dir(cmd.outputPath), 0o755); err != nil {
		return &EncodeError{Diagnostic{CommandLine: cmd.describe(args), ExitStatus: -1, Message: err.Error()}}
	}

	log.Emit(logger.NEW, "Starting %s\n", cmd.describe(args))
	progressChannel, err := transcoder.Start(options)
	if err != nil {
		return &EncodeError{Diagnostic{CommandLine: cmd.describe(args), ExitStatus: -1, Message: parseFfmpegError(err).Error()}}
	}

	cmd.runningCommand = transcoder.GetRunningCmdInstance()
	for prog := range progressChannel {
		if updateHandler == nil {
			continue
		}

		updateHandler(&Progress{
			FramesProcessed: prog.GetFramesProcessed(),
			CurrentTime:     prog.GetCurrentTime(),
			CurrentBitrate:  prog.GetCurrentBitrate(),
			Progress:        prog.GetProgress(),
			Speed:           prog.GetSpeed(),
		})
	}

	log.Emit(logger.DEBUG, "FFmpeg command %s has closed progress channel\n", cmd)
	return cmd.exitError(ctx)
}

// exitError inspects the finished process. The transcoder swallows the
// exit status when progress reporting is enabled, so it's read from the
// process state here instead.
func (cmd *EncodeCommand) exitError(ctx context.Context) error {
	if cmd.runningCommand == nil || cmd.runningCommand.ProcessState == nil {
		return nil
	}

	state := cmd.runningCommand.ProcessState
	if state.Success() {
		return nil
	}

	message := state.String()
	if ctx.Err() != nil {
		message = fmt.Sprintf("%s (%s)", message, ctx.Err())
	}

	return &EncodeError{Diagnostic{
		CommandLine: strings.Join(cmd.runningCommand.Args, " "),
		ExitStatus:  state.ExitCode(),
		Message:     message,
	}}
}

func (cmd *EncodeCommand) InputPath() string  { return cmd.inputPath }
func (cmd *EncodeCommand) OutputPath() string { return cmd.outputPath }

func (cmd *EncodeCommand) String() string {
	var pid int = -1
	if cmd.runningCommand != nil && cmd.runningCommand.Process != nil {
		pid = cmd.runningCommand.Process.Pid
	}

	return fmt.Sprintf("{ffmpeg pid=%d | in_path=%s | out_path=%s}", pid, cmd.inputPath, cmd.outputPath)
}

func (cmd *EncodeCommand) describe(args Args) string {
	parts := []string{cmd.config.ffmpegBinary(), "-i", cmd.inputPath}
	for k, v := range args {
		parts = append(parts, k, fmt.Sprintf("%v", v))
	}

	return strings.Join(append(parts, "-y", cmd.outputPath), " ")
}

func parseFfmpegError(err error) error {
	// Try and pick out some relevant information from the HUGE
	// output log from ffmpeg. The error we get contains lots of information
	// about how the binary was compiled... this is useless info, we just
	// want the 'message' JSON that is encoded inside.
	groups := ffmpegMessageMatcher.FindStringSubmatch(err.Error())
	if len(groups) == 0 {
		return err
	}

	var out map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(groups[1]), &out); jsonErr != nil {
		return errors.New(groups[1])
	}

	exception, ok := out["error"].(map[string]interface{})
	if !ok {
		return errors.New(groups[1])
	}

	if msg, ok := exception["string"].(string); ok {
		return errors.New(msg)
	}

	return errors.New(groups[1])
}
