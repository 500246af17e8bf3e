package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	PTT via the GPIO pins of CM108/CM119 USB audio adapters.
 *
 * Description: The C-Media chips found in most cheap USB radio
 *		interfaces expose a few GPIO pins through their HID
 *		endpoint.  Keying is a single 5 byte output report on
 *		the hidraw device:
 *
 *			byte 0:	report number, always 0.
 *			byte 1:	HID_OR0, always 0.
 *			byte 2:	HID_OR1, GPIO data.   1 << (pin - 1)
 *			byte 3:	HID_OR2, GPIO mask.   1 << (pin - 1)
 *			byte 4:	HID_OR3, always 0.
 *
 *		GPIO 3 is the de facto standard PTT pin on commercial
 *		adapters (DMK URI, RB-USB RIM, RA-35 and friends).
 *
 *		Discovery walks the hidraw devices through udev and
 *		matches the USB parent's vendor/product against the
 *		known chip list.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
)

const CM108_DEFAULT_PTT_PIN = 3

// good_cm108_device reports whether a USB vendor/product pair is a
// chip known to expose usable GPIO.
func good_cm108_device(vid int64, pid int64) bool {
	switch vid {
	case 0x0d8c: // C-Media
		if pid >= 0x0008 && pid <= 0x000f {
			return true // CM108, CM109, CM119
		}
		switch pid {
		case 0x0012, 0x013a, 0x013c: // CM108B, CM119A, CM108AH
			return true
		}
	case 0x0c76: // SSS
		switch pid {
		case 0x1605, 0x1607, 0x160b:
			return true
		}
	}
	return false
}

/*-------------------------------------------------------------------
 *
 * Name:	cm108_find_ptt_device
 *
 * Purpose:	Locate the hidraw node of the first recognized adapter.
 *
 * Returns:	Device path such as /dev/hidraw2.
 *
 *--------------------------------------------------------------------*/

func cm108_find_ptt_device() (string, error) {
	var u udev.Udev
	var e = u.NewEnumerate()

	if err := e.AddMatchSubsystem("hidraw"); err != nil {
		return "", fmt.Errorf("enumerating hidraw devices: %w", err)
	}

	var devices, err = e.Devices()
	if err != nil {
		return "", fmt.Errorf("enumerating hidraw devices: %w", err)
	}

	for _, d := range devices {
		var usb = d.ParentWithSubsystemDevtype("usb", "usb_device")
		if usb == nil {
			continue
		}

		var vid, _ = strconv.ParseInt(usb.SysattrValue("idVendor"), 16, 32)
		var pid, _ = strconv.ParseInt(usb.SysattrValue("idProduct"), 16, 32)

		if good_cm108_device(vid, pid) {
			log.Debug("CM108 PTT device found", "devnode", d.Devnode(), "vid",
				fmt.Sprintf("%04x", vid), "pid", fmt.Sprintf("%04x", pid))
			return d.Devnode(), nil
		}
	}

	return "", fmt.Errorf("no CM108/CM119 HID device found")
}

/*-------------------------------------------------------------------
 *
 * Name:	cm108_line
 *
 * Purpose:	The ptt_line backend.
 *
 * Description:	The hidraw node is opened per write, matching how the
 *		adapters behave best in practice: holding the HID open
 *		interferes with some hotplug/udev setups, and we key
 *		at most a few times a minute.
 *
 *--------------------------------------------------------------------*/

type cm108_line struct {
	device string
	pin    int
	mu     sync.Mutex
}

func open_cm108_line(device string, pin int) (ptt_line, error) {
	if pin <= 0 {
		pin = CM108_DEFAULT_PTT_PIN
	}

	if device == "" {
		var found, err = cm108_find_ptt_device()
		if err != nil {
			return nil, err
		}
		device = found
	}

	var l = &cm108_line{device: device, pin: pin}

	// Prove we can key before the engine depends on it.  Required
	// control device failures are the one fatal startup class.
	if err := l.set_ptt(false); err != nil {
		return nil, fmt.Errorf("opening CM108 PTT on %s: %w", device, err)
	}

	log.Info("CM108 PTT ready", "device", device, "pin", pin)
	return l, nil
}

func (l *cm108_line) set_ptt(active bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var f, err = os.OpenFile(l.device, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", l.device, err)
	}
	defer f.Close()

	var iomask = byte(1 << (l.pin - 1))
	var iodata byte
	if active {
		iodata = byte(1 << (l.pin - 1))
	}

	var report = []byte{0, 0, iodata, iomask, 0}

	var n, writeErr = f.Write(report)
	if writeErr != nil {
		return fmt.Errorf("writing HID report to %s: %w", l.device, writeErr)
	}
	if n != len(report) {
		return fmt.Errorf("short HID report write to %s: %d of %d bytes", l.device, n, len(report))
	}

	return nil
}

func (l *cm108_line) close() error {
	return nil
}
