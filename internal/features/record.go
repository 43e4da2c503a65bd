package features

// Record is one set of sensor readings posted to /predict. Every field is
// optional; nil means the reading was not taken.
type Record struct {
	AmmoniaPPM       *float64 `json:"ammonia_ppm" binding:"omitempty,gte=0"`
	CO2PPMMQ         *float64 `json:"co2_ppm_mq" binding:"omitempty,gte=0"`
	BenzenePPM       *float64 `json:"benzene_ppm" binding:"omitempty,gte=0"`
	CO2PPMMHZ19      *float64 `json:"co2_ppm_mhz19" binding:"omitempty,gte=0"`
	EthanolPPM       *float64 `json:"ethanol_ppm" binding:"omitempty,gte=0"`
	VOCsPPMMics      *float64 `json:"vocs_ppm_mics" binding:"omitempty,gte=0"`
	AcetonePPMQCM    *float64 `json:"acetone_ppm_qcm" binding:"omitempty,gte=0"`
	VOCTypeChemo     *string  `json:"voc_type_chemo"`
	VOCValuePPMChemo *float64 `json:"voc_value_ppm_chemo" binding:"omitempty,gte=0"`
	HeartRateBPM     *float64 `json:"heart_rate_bpm" binding:"omitempty,gte=0"`
	PulseBPM         *float64 `json:"pulse_bpm" binding:"omitempty,gte=0"`
	SpO2Percent      *float64 `json:"spo2_percent" binding:"omitempty,gte=0,lte=100"`
	BodyTempC        *float64 `json:"body_temp_c"`
	ECGSignalRaw     *string  `json:"ecg_signal_raw"`
	ECGRhythmType    *string  `json:"ecg_rhythm_type"`
	SystolicBP       *float64 `json:"systolic_bp" binding:"omitempty,gte=0"`
	DiastolicBP      *float64 `json:"diastolic_bp" binding:"omitempty,gte=0"`
	MeanBP           *float64 `json:"mean_bp" binding:"omitempty,gte=0"`
}

// FeatureCount is the length of every encoded vector.
const FeatureCount = 18

// FieldOrder is the column order the model was fit on. Do not reorder.
var FieldOrder = []string{
	"ammonia_ppm",
	"co2_ppm_mq",
	"benzene_ppm",
	"co2_ppm_mhz19",
	"ethanol_ppm",
	"vocs_ppm_mics",
	"acetone_ppm_qcm",
	"voc_type_chemo",
	"voc_value_ppm_chemo",
	"heart_rate_bpm",
	"pulse_bpm",
	"spo2_percent",
	"body_temp_c",
	"ecg_signal_raw",
	"ecg_rhythm_type",
	"systolic_bp",
	"diastolic_bp",
	"mean_bp",
}

// Categorical lists the free-text fields that are turned into integer codes.
var Categorical = []string{"voc_type_chemo", "ecg_signal_raw", "ecg_rhythm_type"}

// field is a single column of a record: exactly one of num or text is set
// depending on the column kind.
type field struct {
	name string
	num  *float64
	text *string
}

func (r Record) fields() []field {
	return []field{
		{name: "ammonia_ppm", num: r.AmmoniaPPM},
		{name: "co2_ppm_mq", num: r.CO2PPMMQ},
		{name: "benzene_ppm", num: r.BenzenePPM},
		{name: "co2_ppm_mhz19", num: r.CO2PPMMHZ19},
		{name: "ethanol_ppm", num: r.EthanolPPM},
		{name: "vocs_ppm_mics", num: r.VOCsPPMMics},
		{name: "acetone_ppm_qcm", num: r.AcetonePPMQCM},
		{name: "voc_type_chemo", text: r.VOCTypeChemo},
		{name: "voc_value_ppm_chemo", num: r.VOCValuePPMChemo},
		{name: "heart_rate_bpm", num: r.HeartRateBPM},
		{name: "pulse_bpm", num: r.PulseBPM},
		{name: "spo2_percent", num: r.SpO2Percent},
		{name: "body_temp_c", num: r.BodyTempC},
		{name: "ecg_signal_raw", text: r.ECGSignalRaw},
		{name: "ecg_rhythm_type", text: r.ECGRhythmType},
		{name: "systolic_bp", num: r.SystolicBP},
		{name: "diastolic_bp", num: r.DiastolicBP},
		{name: "mean_bp", num: r.MeanBP},
	}
}

// Values returns the readings that were actually supplied, keyed by JSON name.
func (r Record) Values() map[string]any {
	out := map[string]any{}
	for _, f := range r.fields() {
		switch {
		case f.num != nil:
			out[f.name] = *f.num
		case f.text != nil:
			out[f.name] = *f.text
		}
	}
	return out
}

func isCategorical(name string) bool {
	for _, c := range Categorical {
		if c == name {
			return true
		}
	}
	return false
}
