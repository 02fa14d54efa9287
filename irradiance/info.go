package irradiance

import (
	"fmt"
	"time"
)

// ShowSensorInfo displays the current sensor readings in a formatted table
func ShowSensorInfo(sensorModbusAddress string) error {
	if sensorModbusAddress == "" {
		return fmt.Errorf("SensorModbusAddress is not configured")
	}

	// Create TCP modbus client (SensorModbusAddress already includes port)
	client, err := NewTCPClient(sensorModbusAddress, DefaultSlaveAddress)
	if err != nil {
		return fmt.Errorf("error connecting to sensor modbus server at %s: %w", sensorModbusAddress, err)
	}
	defer client.Close()

	reading, err := client.Read()
	if err != nil {
		return fmt.Errorf("error reading sensor data: %w", err)
	}

	fmt.Println()
	fmt.Println("==================== IRRADIANCE SENSOR ====================")
	fmt.Println()
	fmt.Printf("  Read Time:          %s\n", reading.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Irradiance:         %.3f W/m2\n", reading.Irradiance)
	fmt.Printf("  Panel Temperature:  %.1f degC\n", reading.PanelTemp)
	fmt.Printf("  Sensor Status:      %s\n", statusString(reading.Status))
	fmt.Printf("  Sensor Uptime:      %s\n", (time.Duration(reading.SensorUptime) * time.Second).String())
	fmt.Println()
	fmt.Println("===========================================================")
	fmt.Println()

	return nil
}
