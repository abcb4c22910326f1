package peer

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/cowatch/internal/domain"
)

func newTestShare(t *testing.T, systemAudio bool) (*ShareController, *fakeDevices, *fakeSender, *fakeSender) {
	t.Helper()
	camera := newFakeSource(t, "camera", true)
	dev := &fakeDevices{
		user:    camera,
		display: newFakeSource(t, "screen", systemAudio),
	}
	video := &fakeSender{current: camera.VideoTrack()}
	audio := &fakeSender{current: camera.AudioTrack()}
	return newShareController(dev, camera, video, audio), dev, video, audio
}

func TestScreenShareSwapsAndRestoresTracks(t *testing.T) {
	c, dev, video, audio := newTestShare(t, true)

	if err := c.StartScreenShare(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !c.Sharing() {
		t.Fatal("Sharing() = false after start")
	}
	if video.Track() != dev.display.VideoTrack() {
		t.Error("video slot does not carry the screen track")
	}
	if audio.Track() == dev.user.AudioTrack() {
		t.Error("audio slot still carries the raw microphone with system audio present")
	}
	if c.mixer == nil {
		t.Error("no mixing graph despite system audio")
	}

	c.StopScreenShare()
	if c.Sharing() {
		t.Fatal("Sharing() = true after stop")
	}
	if video.Track() != dev.user.VideoTrack() {
		t.Error("camera track not restored to video slot")
	}
	if audio.Track() != dev.user.AudioTrack() {
		t.Error("microphone track not restored to audio slot")
	}
	if c.mixer != nil {
		t.Error("mixing graph survives stop")
	}
	if !dev.display.isStopped() {
		t.Error("screen capture not stopped")
	}
}

func TestScreenShareWithoutSystemAudioLeavesMic(t *testing.T) {
	c, dev, video, audio := newTestShare(t, false)

	if err := c.StartScreenShare(context.Background()); err != nil {
		t.Fatal(err)
	}
	if video.Track() != dev.display.VideoTrack() {
		t.Error("video slot does not carry the screen track")
	}
	if got := audio.replaceCount(); got != 0 {
		t.Errorf("audio slot replaced %d times, want 0", got)
	}
	if c.mixer != nil {
		t.Error("mixing graph built without system audio")
	}
}

func TestCaptureDeniedLeavesPreviousTracks(t *testing.T) {
	c, dev, video, audio := newTestShare(t, true)
	dev.displayErr = domain.ErrCaptureDenied

	err := c.StartScreenShare(context.Background())
	if !errors.Is(err, domain.ErrCaptureDenied) {
		t.Fatalf("err = %v, want ErrCaptureDenied", err)
	}
	if c.Sharing() {
		t.Error("Sharing() = true after denied capture")
	}
	if video.replaceCount() != 0 || audio.replaceCount() != 0 {
		t.Error("sender slots touched by a failed capture")
	}
}

func TestReplaceVideoFailureReleasesCapture(t *testing.T) {
	c, dev, video, _ := newTestShare(t, true)
	video.replaceErr = errors.New("sender gone")

	if err := c.StartScreenShare(context.Background()); err == nil {
		t.Fatal("expected error from failed track replacement")
	}
	if c.Sharing() {
		t.Error("Sharing() = true after failed start")
	}
	if !dev.display.isStopped() {
		t.Error("screen capture leaked after failed start")
	}
}

func TestStopWhenNotSharingIsNoop(t *testing.T) {
	c, _, video, audio := newTestShare(t, true)

	c.StopScreenShare()
	c.StopScreenShare()

	if video.replaceCount() != 0 || audio.replaceCount() != 0 {
		t.Error("stop without an active share touched the sender slots")
	}
}

func TestRestartTearsDownPreviousShare(t *testing.T) {
	c, dev, video, _ := newTestShare(t, true)

	if err := c.StartScreenShare(context.Background()); err != nil {
		t.Fatal(err)
	}
	firstScreen := dev.display
	dev.display = newFakeSource(t, "screen2", true)

	if err := c.StartScreenShare(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !firstScreen.isStopped() {
		t.Error("previous screen capture not stopped on restart")
	}
	if video.Track() != dev.display.VideoTrack() {
		t.Error("video slot does not carry the new screen track")
	}
	dev.mu.Lock()
	opens := dev.displayOpens
	dev.mu.Unlock()
	if opens != 2 {
		t.Errorf("display opened %d times, want 2", opens)
	}
}

func TestExternalCaptureEndStopsShare(t *testing.T) {
	c, dev, video, _ := newTestShare(t, true)

	if err := c.StartScreenShare(context.Background()); err != nil {
		t.Fatal(err)
	}
	// The OS-level "stop sharing" control ends the capture out-of-band.
	dev.display.fireEnded()

	if c.Sharing() {
		t.Error("Sharing() = true after capture ended externally")
	}
	if video.Track() != dev.user.VideoTrack() {
		t.Error("camera track not restored after external end")
	}
}

func TestToggleMicFlipsEnabledInPlace(t *testing.T) {
	c, dev, _, audio := newTestShare(t, true)

	if on := c.ToggleMic(); on {
		t.Error("first toggle should mute")
	}
	if dev.user.AudioEnabled() {
		t.Error("microphone still enabled after mute")
	}
	if on := c.ToggleMic(); !on {
		t.Error("second toggle should unmute")
	}
	if got := audio.replaceCount(); got != 0 {
		t.Errorf("mic toggle replaced the audio slot %d times, want 0", got)
	}
}

func TestToggleCameraFlipsEnabledInPlace(t *testing.T) {
	c, dev, video, _ := newTestShare(t, true)

	if on := c.ToggleCamera(); on {
		t.Error("first toggle should disable")
	}
	if dev.user.VideoEnabled() {
		t.Error("camera still enabled after disable")
	}
	c.ToggleCamera()
	if !dev.user.VideoEnabled() {
		t.Error("camera not re-enabled")
	}
	if got := video.replaceCount(); got != 0 {
		t.Errorf("camera toggle replaced the video slot %d times, want 0", got)
	}
}
