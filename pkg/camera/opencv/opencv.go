// pkg/camera/opencv/opencv.go

//go:build cgo

package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/AlverezYari/reviewgreen/internal/logging"
	"github.com/AlverezYari/reviewgreen/pkg/camera"
)

const (
	maxDeviceIndex  = 5
	maxReadFailures = 30
)

// Manager acquires live streams from local capture devices through OpenCV.
type Manager struct {
	fps     int
	devices map[camera.FacingMode]string

	table *deviceTable

	mu        sync.Mutex
	scanned   bool
	supported bool
}

// NewManager maps the back and front facing modes to device ids. An empty
// front id makes both facing modes use the back device.
func NewManager(backID, frontID string, fps int) *Manager {
	if frontID == "" {
		frontID = backID
	}
	return &Manager{
		fps: fps,
		devices: map[camera.FacingMode]string{
			camera.FacingBack:  backID,
			camera.FacingFront: frontID,
		},
		table: newDeviceTable(),
	}
}

func (m *Manager) ScanDevices() ([]camera.Device, error) {
	var devices []camera.Device

	// Usually, camera 0 is the built-in webcam
	for i := 0; i < maxDeviceIndex; i++ {
		id := strconv.Itoa(i)

		if m.table.held(id) {
			devices = append(devices, camera.Device{ID: id, Name: deviceName(i), IsAvailable: false, DeviceType: deviceType(i)})
			continue
		}

		cap, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		opened := cap.IsOpened()
		cap.Close()
		if !opened {
			continue
		}
		devices = append(devices, camera.Device{ID: id, Name: deviceName(i), IsAvailable: true, DeviceType: deviceType(i)})
	}

	return devices, nil
}

// Supported scans for devices once and caches the answer.
func (m *Manager) Supported() bool {
	m.mu.Lock()
	scanned := m.scanned
	m.mu.Unlock()
	if scanned {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.supported
	}

	devices, err := m.ScanDevices()
	supported := err == nil && len(devices) > 0

	m.mu.Lock()
	m.scanned = true
	m.supported = supported
	m.mu.Unlock()

	logging.Infof("opencv: found %d capture device(s)", len(devices))
	return supported
}

func (m *Manager) Acquire(ctx context.Context, facing camera.FacingMode, res camera.Resolution) (camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deviceID, ok := m.devices[facing]
	if !ok || deviceID == "" {
		return nil, camera.Unavailable(camera.ReasonNoDevice, fmt.Errorf("no device configured for %s camera", facing))
	}
	index, err := strconv.Atoi(deviceID)
	if err != nil {
		return nil, camera.Unavailable(camera.ReasonNoDevice, fmt.Errorf("invalid device ID: %s", deviceID))
	}

	if !m.table.reserve(deviceID) {
		return nil, camera.Unavailable(camera.ReasonDeviceBusy, fmt.Errorf("camera %s is already streaming", deviceID))
	}

	cap, err := gocv.OpenVideoCapture(index)
	if err != nil {
		m.table.release(deviceID)
		return nil, camera.Unavailable(camera.ReasonNoDevice, fmt.Errorf("error opening camera %s: %v", deviceID, err))
	}
	if !cap.IsOpened() {
		cap.Close()
		m.table.release(deviceID)
		return nil, camera.Unavailable(camera.ReasonPermissionDenied, fmt.Errorf("camera %s refused to open", deviceID))
	}

	cap.Set(gocv.VideoCaptureFrameWidth, float64(res.Width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(res.Height))
	if m.fps > 0 {
		cap.Set(gocv.VideoCaptureFPS, float64(m.fps))
	}

	s := &stream{
		deviceID: deviceID,
		facing:   facing,
		cap:      cap,
		frames:   make(chan image.Image, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		release:  m.table.release,
	}
	m.table.attach(deviceID, s)

	go s.run()
	logging.Infof("opencv: opened camera %s for %s at %s", deviceID, facing, res)
	return s, nil
}

// CloseAll stops every stream still open, used at shutdown.
func (m *Manager) CloseAll() {
	m.table.stopAll()
}

type stream struct {
	deviceID string
	facing   camera.FacingMode
	cap      *gocv.VideoCapture
	frames   chan image.Image
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	release  func(deviceID string)
	closeErr error
}

func (s *stream) Facing() camera.FacingMode { return s.facing }

func (s *stream) Frames() <-chan image.Image { return s.frames }

func (s *stream) Stop() error {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		if err := s.cap.Close(); err != nil {
			s.closeErr = fmt.Errorf("error closing camera %s: %v", s.deviceID, err)
		}
		s.release(s.deviceID)
		logging.Infof("opencv: released camera %s", s.deviceID)
	})
	return s.closeErr
}

func (s *stream) run() {
	defer close(s.done)
	defer close(s.frames)

	img := gocv.NewMat()
	defer img.Close()

	failures := 0
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if ok := s.cap.Read(&img); !ok || img.Empty() {
			failures++
			if failures >= maxReadFailures {
				logging.Errorf("opencv: camera %s stopped delivering frames", s.deviceID)
				return
			}
			continue
		}
		failures = 0

		frame, err := img.ToImage()
		if err != nil {
			logging.Debugf("opencv: failed to convert frame: %v", err)
			continue
		}
		deliverLatest(s.frames, frame)
	}
}

// MatEncoder encodes stills with OpenCV's JPEG codec.
type MatEncoder struct{}

func (MatEncoder) Encode(ctx context.Context, frame image.Image, quality int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %v", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("frame is empty")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %v", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (MatEncoder) ContentType() string { return "image/jpeg" }

func deviceName(index int) string {
	if index == 0 {
		return "Built-in Camera"
	}
	return fmt.Sprintf("Camera %d", index)
}

func deviceType(index int) camera.DeviceType {
	if index == 0 {
		return camera.BuiltInCamera
	}
	return camera.USBCamera
}
